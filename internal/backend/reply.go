package backend

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"gateway/internal/command"
)

// ToReply converts a *redis.Cmd's generic result into the gateway's
// typed Reply (spec.md §3). go-redis collapses RESP types into plain Go
// values (int64, string, []interface{}, nil); this is the one place
// that maps them back onto the Nil/Integer/Bytes/Okay/Array variants the
// reply encoder expects. A status reply other than "OK" arrives as a
// plain string and becomes Bytes; Status is never produced here. An
// explicit backend error is
// returned as-is for the caller to render as a BackendCommand error.
// Shared by the HTTP and WebSocket frontends so both dispatch paths
// agree on the mapping.
func ToReply(cmd *redis.Cmd) (command.Reply, error) {
	if err := cmd.Err(); err != nil && err != redis.Nil {
		return command.Reply{}, fmt.Errorf("%s", err.Error())
	}

	return goValueToReply(cmd.Val())
}

func goValueToReply(v interface{}) (command.Reply, error) {
	switch val := v.(type) {
	case nil:
		return command.NilReply(), nil
	case int64:
		return command.IntegerReply(val), nil
	case string:
		if val == "OK" {
			return command.OkayReply(), nil
		}
		return command.BytesReply([]byte(val)), nil
	case []byte:
		return command.BytesReply(val), nil
	case bool:
		if val {
			return command.IntegerReply(1), nil
		}
		return command.IntegerReply(0), nil
	case []interface{}:
		items := make([]command.Reply, len(val))
		for i, elem := range val {
			item, err := goValueToReply(elem)
			if err != nil {
				return command.Reply{}, err
			}
			items[i] = item
		}
		return command.ArrayReply(items), nil
	default:
		return command.BytesReply([]byte(fmt.Sprintf("%v", val))), nil
	}
}
