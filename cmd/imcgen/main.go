// Command imcgen generates typed per-message Go wrapper types over the
// uniform wire.Message/catalog.Catalog runtime, for callers that want
// compile-time field names instead of string lookups.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli"

	"lsts.pt/imc/catalog"
	"lsts.pt/imc/config"
	"lsts.pt/imc/internal/codegen"
	"lsts.pt/imc/log"
)

func printFatal(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, msg+"\n", args...)
	os.Exit(1)
}

// readAbbrevFile reads one message abbrev per line from path, skipping
// blank lines and "#"-prefixed comments.
func readAbbrevFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, scanner.Err()
}

func generateCommand(c *cli.Context) error {
	whitelistFile := c.String("whitelist")
	blacklistFile := c.String("blacklist")
	minimal := c.Bool("minimal")

	set := 0
	for _, v := range []bool{whitelistFile != "", blacklistFile != "", minimal} {
		if v {
			set++
		}
	}
	if set > 1 {
		printFatal("imcgen: --whitelist, --blacklist and --minimal are mutually exclusive")
	}

	schemaPath := c.String("schema")
	var cat *catalog.Catalog
	var err error
	if schemaPath != "" {
		cat, err = catalog.Load(schemaPath)
	} else {
		cat, err = catalog.LoadOrFetch(config.SchemaURL())
	}
	if err != nil {
		printFatal("loading schema: %s", err)
	}

	sel := codegen.Selection{Minimal: minimal}
	if whitelistFile != "" {
		sel.Whitelist, err = readAbbrevFile(whitelistFile)
		if err != nil {
			printFatal("reading whitelist %s: %s", whitelistFile, err)
		}
	}
	if blacklistFile != "" {
		sel.Blacklist, err = readAbbrevFile(blacklistFile)
		if err != nil {
			printFatal("reading blacklist %s: %s", blacklistFile, err)
		}
	}

	descs := codegen.Select(cat, sel)
	if len(descs) == 0 {
		printFatal("imcgen: selection matched no messages")
	}

	outDir := c.String("out")
	pkg := c.String("package")
	overwrite := c.Bool("overwrite")

	files, err := codegen.GenerateDir(outDir, pkg, descs, overwrite)
	if err != nil {
		printFatal("%s", err)
	}
	log.Log.Noticef("imcgen: wrote %d message types across %d files into %s", len(descs), files, outDir)
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "imcgen"
	app.Usage = "generate typed Go wrapper types for IMC messages"
	app.Version = "0.1.0"
	app.Commands = []cli.Command{
		{
			Name:   "generate",
			Usage:  "wipe and repopulate --out with typed wrapper types for the selected messages",
			Action: generateCommand,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "schema", Usage: "path to a local IMC.xml (defaults to fetch/cache)"},
				cli.StringFlag{Name: "whitelist", Usage: "file listing message abbrevs to include, one per line"},
				cli.StringFlag{Name: "blacklist", Usage: "file listing message abbrevs to exclude, one per line"},
				cli.BoolFlag{Name: "minimal", Usage: "restrict to the minimal always-present message set"},
				cli.StringFlag{Name: "out", Value: "imcmsg", Usage: "output directory (wiped and repopulated)"},
				cli.BoolFlag{Name: "overwrite", Usage: "allow wiping a non-empty --out directory"},
				cli.StringFlag{Name: "package", Value: "imcmsg", Usage: "generated package name"},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		printFatal("%s", err)
	}
}
