package reconcile

import (
	"testing"

	"chatlink/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tsMsg(id, ts, content string) models.Message {
	return models.Message{ID: id, ChatID: "42", Sender: "alice", Content: content, Timestamp: ts}
}

func ids(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestMergeDeduplicatesByID(t *testing.T) {
	historical := []models.Message{
		tsMsg("a", "2024-03-01T10:00:00Z", "from history"),
		tsMsg("b", "2024-03-01T10:05:00Z", "from history"),
	}
	live := []models.Message{
		tsMsg("b", "2024-03-01T10:05:00Z", "from live"),
		tsMsg("c", "2024-03-01T10:10:00Z", "from live"),
		tsMsg("c", "2024-03-01T10:10:00Z", "duplicate frame"),
	}

	merged := Merge(historical, live)

	require.Equal(t, []string{"a", "b", "c"}, ids(merged))
}

func TestMergeLiveCopyWins(t *testing.T) {
	historical := []models.Message{tsMsg("b", "2024-03-01T10:05:00Z", "historical copy")}
	live := []models.Message{tsMsg("b", "2024-03-01T10:05:00Z", "live copy")}

	merged := Merge(historical, live)

	require.Len(t, merged, 1)
	assert.Equal(t, "live copy", merged[0].Content)
}

func TestMergeSortsByTimestamp(t *testing.T) {
	historical := []models.Message{
		tsMsg("x", "2024-03-01T12:00:00Z", ""),
		tsMsg("y", "2024-03-01T09:00:00Z", ""),
	}
	live := []models.Message{
		tsMsg("z", "2024-03-01T10:30:00Z", ""),
	}

	merged := Merge(historical, live)

	assert.Equal(t, []string{"y", "z", "x"}, ids(merged))
}

func TestMergeTimestampTieBrokenByID(t *testing.T) {
	live := []models.Message{
		tsMsg("b", "2024-03-01T10:00:00Z", ""),
		tsMsg("a", "2024-03-01T10:00:00Z", ""),
		tsMsg("c", "2024-03-01T10:00:00Z", ""),
	}

	merged := Merge(nil, live)

	assert.Equal(t, []string{"a", "b", "c"}, ids(merged))
}

func TestMergeUnparseableTimestampsSortLast(t *testing.T) {
	historical := []models.Message{
		tsMsg("bad2", "not a date", ""),
		tsMsg("ok1", "2024-03-01T10:00:00Z", ""),
	}
	live := []models.Message{
		tsMsg("bad1", "", ""),
		tsMsg("ok2", "2024-03-01T11:00:00Z", ""),
	}

	merged := Merge(historical, live)

	assert.Equal(t, []string{"ok1", "ok2", "bad1", "bad2"}, ids(merged))
}

func TestMergeToleratesNaiveISOTimestamps(t *testing.T) {
	// datetime.isoformat() without a zone suffix still parses
	live := []models.Message{
		tsMsg("a", "2024-03-01T10:00:00.123456", ""),
		tsMsg("b", "2024-03-01T09:00:00", ""),
	}

	merged := Merge(nil, live)

	assert.Equal(t, []string{"b", "a"}, ids(merged))
}

func TestMergeEmptyInputs(t *testing.T) {
	assert.Empty(t, Merge(nil, nil))
	assert.Len(t, Merge([]models.Message{tsMsg("a", "2024-03-01T10:00:00Z", "")}, nil), 1)
	assert.Len(t, Merge(nil, []models.Message{tsMsg("a", "2024-03-01T10:00:00Z", "")}), 1)
}

func TestMergeScenarioFromLiveOverflow(t *testing.T) {
	// Store capacity 3 saw a,b,c,d and evicted a; history still has a and b.
	live := []models.Message{
		tsMsg("b", "2024-03-01T10:05:00Z", "live b"),
		tsMsg("c", "2024-03-01T10:06:00Z", "live c"),
		tsMsg("d", "2024-03-01T10:07:00Z", "live d"),
	}
	historical := []models.Message{
		tsMsg("a", "2024-03-01T10:00:00Z", "hist a"),
		tsMsg("b", "2024-03-01T10:05:00Z", "hist b"),
	}

	merged := Merge(historical, live)

	require.Equal(t, []string{"a", "b", "c", "d"}, ids(merged))
	assert.Equal(t, "live b", merged[1].Content)
}
