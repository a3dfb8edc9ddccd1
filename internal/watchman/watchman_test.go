package watchman

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubscribeCommandShape(t *testing.T) {
	line := subscribeCommand("/root/proj", "checker-1", []string{"rb", "rbi"})
	require.True(t, strings.HasSuffix(line, "\n"))

	var cmd []interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSuffix(line, "\n")), &cmd))
	require.Equal(t, "subscribe", cmd[0])
	require.Equal(t, "/root/proj", cmd[1])
	require.Equal(t, "checker-1", cmd[2])

	opts, ok := cmd[3].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, true, opts["empty_on_fresh_instance"])
	require.Equal(t, false, opts["defer_vcs"])
}

func TestReadLoopDispatchesFreshInstanceNotifications(t *testing.T) {
	lines := `{"subscribe":"checker-1"}
{"is_fresh_instance":true,"files":["a.rb","b.rb"]}
not even json
{"is_fresh_instance":false,"files":["c.rb"]}
`
	var got []Edit
	l := &Listener{OnEdits: func(edits []Edit) { got = append(got, edits...) }}
	l.readLoop(strings.NewReader(lines))

	require.Len(t, got, 3)
	require.Equal(t, "a.rb", got[0].Path)
	require.Equal(t, "b.rb", got[1].Path)
	require.Equal(t, "c.rb", got[2].Path)
}

func TestReadLoopIgnoresSubscribeAckWithNoFreshInstance(t *testing.T) {
	l := &Listener{OnEdits: func(edits []Edit) { t.Fatalf("unexpected edits: %v", edits) }}
	l.readLoop(strings.NewReader(`{"subscribe":"checker-1"}` + "\n"))
}

func TestStopIsIdempotent(t *testing.T) {
	l := &Listener{stop: make(chan struct{})}
	l.Stop()
	l.Stop()
	select {
	case <-l.stop:
	default:
		t.Fatal("stop channel should be closed")
	}
}
