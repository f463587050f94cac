package repositories

import (
	"game-relay/codec"
	"strings"
	"time"

	"github.com/mama165/sdk-go/database"
)

// InspectRow decodes one raw key/value pair into display columns. It
// satisfies database.RowMapper so the same view backs the CLI table and
// the debug web page.
func InspectRow(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	row.Namespace = "-"
	row.Scores = "-"

	kind, _, _ := strings.Cut(key, ":")
	var err error
	switch kind {
	case "user":
		var r userRow
		if err = codec.Unmarshal(val, &r); err == nil {
			row.Type = "USER"
			row.Timestamp = clock(r.LastSeenAt)
			row.EntityID = r.ID
			row.Detail = r.Name
		}
	case "group":
		var r groupRow
		if err = codec.Unmarshal(val, &r); err == nil {
			row.Type = "GROUP"
			row.Timestamp = clock(r.CreatedAt)
			row.EntityID = r.ID
			row.Namespace = r.OwnerID
			row.Detail = r.Title
		}
	case "member":
		var r membershipRow
		if err = codec.Unmarshal(val, &r); err == nil {
			row.Type = "MEMBER"
			row.Timestamp = clock(r.JoinedAt)
			row.EntityID = r.UserID
			row.Namespace = r.GroupID
			row.Detail = "joined"
		}
	case "invite":
		var r invitationRow
		if err = codec.Unmarshal(val, &r); err == nil {
			row.Type = "INVITE"
			row.Timestamp = clock(r.CreatedAt)
			row.EntityID = r.UserID
			row.Namespace = r.GroupID
			row.Detail = "from " + r.InviterID
		}
	case "idx":
		row.Type = "INDEX"
		row.EntityID = strings.TrimPrefix(key, "idx:")
		row.Detail = "-"
	}
	if err != nil {
		row.Type = "CORRUPT"
		row.Detail = err.Error()
	}
	return row
}

func clock(unixNano int64) string {
	if unixNano == 0 {
		return "--:--:--"
	}
	return time.Unix(0, unixNano).UTC().Format("15:04:05")
}
