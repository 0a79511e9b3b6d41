package main

import (
	"chat-relay/domain"
	"chat-relay/infrastructure/storage"
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

// inspect prints the fallback emails waiting for a reply, or the history of
// one room, from a relay store. The store is opened read-only so it can run
// next to a live relay.
func main() {
	_ = godotenv.Load()
	dbPath := flag.String("db", os.Getenv("BADGER_FILEPATH"), "Path to badger DB")
	room := flag.String("room", "", "Room to print the history of, fallback emails when empty")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	repository := storage.NewMessageRepository(db, logs.GetLoggerFromString("WARN"), nil)
	table := newTable()
	ctx := context.Background()

	if *room == "" {
		entries, err := repository.ListFallbackEmails(ctx)
		if err != nil {
			log.Fatal(err)
		}
		table.SetHeader([]string{"Received", "Email", "Replied", "Content"})
		table.AppendBulk(lo.Map(entries, func(e domain.FallbackEmail, _ int) []string {
			return []string{e.Received.Format(time.RFC3339), e.Email, yesNo(e.Replied), e.Content}
		}))
	} else {
		messages, err := repository.ListMessages(ctx, domain.RoomID(*room))
		if err != nil {
			log.Fatal(err)
		}
		table.SetHeader([]string{"Sent", "Sender", "Content"})
		table.AppendBulk(lo.Map(messages, func(m domain.Message, _ int) []string {
			return []string{m.Sent.Format(time.RFC3339), lo.FromPtrOr(m.Sender, "-"), m.Content}
		}))
	}
	table.Render()
}

func newTable() *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
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
	return table
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
