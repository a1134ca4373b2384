// Command imcctl is a console debugging tool for an IMC link: it dials a
// peer's TCP endpoint or replays a capture file, prints every inbound
// frame, and on request sends a Heartbeat.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"lsts.pt/imc/bus"
	"lsts.pt/imc/catalog"
	"lsts.pt/imc/config"
	"lsts.pt/imc/dispatch"
	"lsts.pt/imc/transport"
	"lsts.pt/imc/wire"
)

func printFatal(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, msg+"\n", args...)
	os.Exit(1)
}

func monitorCommand(c *cli.Context) error {
	addr := c.Args().First()
	if addr == "" {
		printFatal("usage: imcctl monitor <host:port>")
	}

	cat := loadCatalog(c)
	t, err := transport.DialTCP(addr, 5*time.Second)
	if err != nil {
		printFatal("dialing %s: %s", addr, err)
	}

	cfg := config.DefaultBus()
	b := bus.New(t, cat, cfg)
	sub := dispatch.NewSubscriber(b, cat, cfg)
	abbrevColor := color.New(color.FgHiCyan).SprintFunc()
	sub.SubscribeAll(dispatch.Filter{}, func(msg *wire.Message, send dispatch.SendFunc) error {
		fmt.Printf("%s from 0x%04x: %s\n", abbrevColor(msg.Abbrev()), headerSrc(msg), summarize(msg))
		return nil
	})
	sub.SubscribeUnknown(func(u *wire.Unknown, send dispatch.SendFunc) error {
		fmt.Printf("%s mgid=%d from 0x%04x: %d payload bytes\n", abbrevColor("Unknown"), u.Mgid, u.Header.Src, len(u.Payload))
		return nil
	})
	sub.Run()
	return nil
}

func replayCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		printFatal("usage: imcctl replay <capture-file>")
	}
	cat := loadCatalog(c)
	t, err := transport.OpenFile(path, c.String("append"))
	if err != nil {
		printFatal("opening %s: %s", path, err)
	}

	cfg := config.DefaultBus()
	b := bus.New(t, cat, cfg)
	defer b.Close()

	abbrevColor := color.New(color.FgHiCyan).SprintFunc()
	for in := range b.Inbound() {
		switch {
		case in.Message != nil:
			fmt.Printf("%s from 0x%04x: %s\n", abbrevColor(in.Message.Abbrev()), headerSrc(in.Message), summarize(in.Message))
		case in.Unknown != nil:
			fmt.Printf("%s mgid=%d: %d payload bytes\n", abbrevColor("Unknown"), in.Unknown.Mgid, len(in.Unknown.Payload))
		}
	}
	return nil
}

func infoCommand(c *cli.Context) error {
	addr := c.Args().First()
	if addr == "" {
		printFatal("usage: imcctl info <host:port>")
	}
	cat := loadCatalog(c)
	t, err := transport.DialTCP(addr, 5*time.Second)
	if err != nil {
		printFatal("dialing %s: %s", addr, err)
	}
	cfg := config.DefaultBus()
	b := bus.New(t, cat, cfg)
	defer b.Close()
	sub := dispatch.NewSubscriber(b, cat, cfg)
	sub.PrintInformation()
	return nil
}

func heartbeatCommand(c *cli.Context) error {
	addr := c.Args().First()
	if addr == "" {
		printFatal("usage: imcctl heartbeat <host:port>")
	}
	cat := loadCatalog(c)
	t, err := transport.DialTCP(addr, 5*time.Second)
	if err != nil {
		printFatal("dialing %s: %s", addr, err)
	}
	defer t.Close()

	b := bus.New(t, cat, config.DefaultBus())
	desc, ok := cat.ByAbbrev("Heartbeat")
	if !ok {
		printFatal("catalog has no Heartbeat message")
	}
	msg, err := wire.NewMessage(desc, nil)
	if err != nil {
		printFatal("building Heartbeat: %s", err)
	}
	if err := b.Send(msg, wire.Big, wire.EncodeOptions{Cat: cat}); err != nil {
		printFatal("sending Heartbeat: %s", err)
	}
	fmt.Println("Heartbeat sent.")
	return nil
}

func loadCatalog(c *cli.Context) *catalog.Catalog {
	var cat *catalog.Catalog
	var err error
	if schema := c.GlobalString("schema"); schema != "" {
		cat, err = catalog.Load(schema)
	} else {
		cat, err = catalog.LoadOrFetch(config.SchemaURL())
	}
	if err != nil {
		printFatal("loading schema: %s", err)
	}
	return cat
}

func headerSrc(msg *wire.Message) uint16 {
	if msg.Header == nil {
		return 0
	}
	return msg.Header.Src
}

func summarize(msg *wire.Message) string {
	if msg.Desc == nil || len(msg.Desc.Fields) == 0 {
		return "(no fields)"
	}
	out := ""
	for i, fd := range msg.Desc.Fields {
		if i > 0 {
			out += ", "
		}
		v, _ := msg.Get(fd.Name)
		out += fmt.Sprintf("%s=%v", fd.Name, v)
	}
	return out
}

func main() {
	app := cli.NewApp()
	app.Name = "imcctl"
	app.Usage = "connect to and exercise an IMC link from the console"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "schema", Usage: "path to a local IMC.xml (defaults to fetch/cache)"},
	}
	app.Commands = []cli.Command{
		{
			Name:   "monitor",
			Usage:  "imcctl monitor <host:port> -- print every inbound message",
			Action: monitorCommand,
		},
		{
			Name:   "heartbeat",
			Usage:  "imcctl heartbeat <host:port> -- send a single Heartbeat",
			Action: heartbeatCommand,
		},
		{
			Name:   "info",
			Usage:  "imcctl info <host:port> -- print the peer's Announce and entity list",
			Action: infoCommand,
		},
		{
			Name:   "replay",
			Usage:  "imcctl replay <capture-file> -- print every frame of a capture",
			Action: replayCommand,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "append", Usage: "append any written frames to this file"},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		printFatal("%s", err)
	}
}
