package store

import (
	"fmt"
	"strings"
)

// eventColumns is the column order used by insertEventsQuery.
const eventColumns = "id, event_type, session_id, user_id, name, timestamp, raw"

const eventColumnCount = 7

const queryCountEvents = `SELECT COUNT(*) FROM events`

const queryExportIDs = `
	SELECT id FROM events
	WHERE id > $1
	ORDER BY id
	LIMIT $2
`

// insertEventsQuery builds a multi-row insert for n rows that reports only the
// ids actually inserted.
func insertEventsQuery(n int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO events (")
	b.WriteString(eventColumns)
	b.WriteString(") VALUES ")
	for row := 0; row < n; row++ {
		if row > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for col := 0; col < eventColumnCount; col++ {
			if col > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", row*eventColumnCount+col+1)
		}
		b.WriteByte(')')
	}
	b.WriteString(" ON CONFLICT (id) DO NOTHING RETURNING id")
	return b.String()
}
