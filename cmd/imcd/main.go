// Command imcd is the IMC bus daemon: it loads the message catalog,
// listens for peer TCP connections, and runs one bus/dispatcher pair per
// connection. With -worker it instead acts as the child side of the
// out-of-process execution mode, bridging stdio to a TCP link.
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"github.com/op/go-logging"

	"lsts.pt/imc/bus"
	"lsts.pt/imc/catalog"
	"lsts.pt/imc/config"
	"lsts.pt/imc/dispatch"
	"lsts.pt/imc/log"
	"lsts.pt/imc/transport"
	"lsts.pt/imc/wire"
)

func main() {
	listenAddr := flag.String("listen", ":6002", "address to listen for IMC peers on")
	schemaPath := flag.String("schema", "", "path to a local IMC.xml (defaults to fetch/cache)")
	sysName := flag.String("name", "imcd", "system name announced to peers")
	workerAddr := flag.String("worker", "", "run as an out-of-process I/O worker bridging stdio to the given host:port")
	useSyslog := flag.Bool("syslog", os.Getenv("IMC_LOG_SYSLOG") != "", "log to syslog instead of stderr")
	flag.Parse()

	log.Setup("imcd", logging.NOTICE, *useSyslog)

	if *workerAddr != "" {
		if err := runWorker(*workerAddr); err != nil {
			log.Log.Fatal(err)
		}
		return
	}

	defer func() {
		if x := recover(); x != nil {
			log.Log.Error(fmt.Sprintf("run time panic: %v", x))
			log.Log.Error(string(debug.Stack()))
			panic(x)
		}
	}()

	var cat *catalog.Catalog
	var err error
	if *schemaPath != "" {
		cat, err = catalog.Load(*schemaPath)
	} else {
		cat, err = catalog.LoadOrFetch(config.SchemaURL())
	}
	if err != nil {
		log.Log.Fatal(err)
	}

	ln, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		log.Log.Fatal(err)
	}
	defer ln.Close()

	cfg := config.DefaultBus()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-stop:
					return
				default:
					log.Log.Error("accept:", err)
					return
				}
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				serveConn(conn, cat, cfg, *sysName)
			}()
		}
	}()

	log.Log.Notice(fmt.Sprintf("imcd launched and listening on %s", *listenAddr))

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, os.Interrupt, os.Kill, syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGTERM)
	sig, ok := <-stopSignal
	close(stop)
	ln.Close()
	if ok {
		log.Log.Notice("stopping with signal", sig)
	}
	wg.Wait()
}

// runWorker is the child side of the out-of-process execution mode: it
// connects the real transport, writes the single ready byte the parent's
// handshake blocks on, then shuttles raw bytes between stdio and the
// link until either side ends.
func runWorker(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := os.Stdout.Write([]byte{0x00}); err != nil {
		return err
	}

	done := make(chan error, 2)
	go func() {
		_, err := io.Copy(conn, os.Stdin)
		done <- err
	}()
	go func() {
		_, err := io.Copy(os.Stdout, conn)
		done <- err
	}()
	return <-done
}

func serveConn(conn net.Conn, cat *catalog.Catalog, cfg config.Bus, sysName string) {
	defer conn.Close()

	t := transport.NewTCP(conn)
	b := bus.New(t, cat, cfg)
	defer b.Close()

	sub := dispatch.NewSubscriber(b, cat, cfg)
	defer sub.Stop()

	if desc, ok := cat.ByAbbrev("Announce"); ok {
		announce, err := wire.NewMessage(desc, map[string]interface{}{"sys_name": sysName})
		if err == nil {
			err = announce.ZeroFill()
		}
		if err != nil {
			log.Log.Warning("building Announce:", err)
		} else if err := b.Send(announce, wire.Big, wire.EncodeOptions{Cat: cat}); err != nil {
			log.Log.Warning("sending Announce:", err)
		}
	}

	sub.Run()
}
