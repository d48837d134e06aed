// Command emballoc-monitor follows a pool dump file and serves the
// collected corruption reports as JSON over HTTP, optionally over HTTP/3.
//
// Usage:
//
//	emballoc-monitor -dump /var/run/pool.dump -listen :8750 [-h3 :8750]
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/orizon-lang/emballoc/internal/dumpwatch"
	"github.com/orizon-lang/emballoc/internal/reportsrv"
)

func main() {
	dump := flag.String("dump", "", "pool dump file to follow (required)")
	listen := flag.String("listen", "127.0.0.1:8750", "HTTP listen address")
	h3 := flag.String("h3", "", "optional HTTP/3 (QUIC) listen address")
	flag.Parse()

	if *dump == "" {
		fmt.Fprintln(os.Stderr, "usage: emballoc-monitor -dump <path> [-listen addr] [-h3 addr]")
		os.Exit(2)
	}

	store := reportsrv.NewStore()
	handler := reportsrv.Handler(store)

	watcher, err := dumpwatch.New(*dump)
	if err != nil {
		log.Fatalf("watch %s: %v", *dump, err)
	}
	defer watcher.Close()

	go func() {
		for {
			select {
			case rec, ok := <-watcher.Records():
				if !ok {
					return
				}
				store.Add(rec)
				log.Printf("corruption report: %s (offset %d)", rec.Message, rec.Mark)
			case err, ok := <-watcher.Errors():
				if !ok {
					return
				}
				log.Printf("watch error: %v", err)
			}
		}
	}()

	if *h3 != "" {
		srv, err := reportsrv.NewHTTP3Server(*h3, nil, handler)
		if err != nil {
			log.Fatalf("http3 setup: %v", err)
		}
		addr, err := srv.Start()
		if err != nil {
			log.Fatalf("http3 listen: %v", err)
		}
		defer srv.Close()
		log.Printf("serving reports over HTTP/3 on %s", addr)
	}

	log.Printf("following %s, serving reports on http://%s/reports", *dump, *listen)
	if err := http.ListenAndServe(*listen, handler); err != nil {
		log.Fatal(err)
	}
}
