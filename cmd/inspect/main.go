// Command inspect dumps the relay's BadgerDB as a table, or serves it on a
// small debug page with -web.
package main

import (
	"flag"
	"fmt"
	"game-relay/repositories"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

var kindColours = map[string]color.Style{
	"USER":    color.New(color.FgCyan),
	"GROUP":   color.New(color.FgGreen),
	"MEMBER":  color.New(color.FgBlue),
	"INVITE":  color.New(color.FgYellow),
	"CORRUPT": color.New(color.FgRed, color.OpBold),
}

func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	// Empty prefix scans everything, index keys included.
	prefix := flag.String("prefix", "group:", "Prefix to scan")
	web := flag.Int("web", 0, "Serve the rows on this port instead of printing them")
	colours := flag.Bool("colours", true, "Colour the type column")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	if *web > 0 {
		database.StartDebugServer(db, *web, "/inspect", repositories.InspectRow)
		database.Wait(*prefix)
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Timestamp", "Entity", "Scope", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	count := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))
			err := item.Value(func(v []byte) error {
				row := repositories.InspectRow(key, v)
				kind := row.Type
				if style, ok := kindColours[kind]; ok && *colours {
					kind = style.Render(kind)
				}
				table.Append([]string{row.Key, kind, row.Timestamp, row.EntityID, row.Namespace, row.Detail})
				count++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
	fmt.Printf("\n%d row(s) under %q\n", count, *prefix)
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil {
		// A crashed relay can leave a vlog that needs truncating, which only
		// a writable open does.
		if strings.Contains(err.Error(), "Log truncate required") {
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).
				WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}
			_ = db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
