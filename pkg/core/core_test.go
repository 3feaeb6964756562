package core

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csa/pkg/codec"
	"csa/pkg/format"
)

func storeSelector(string, []byte) codec.Method { return codec.MethodStore }

// writeTree materializes a map of relative path -> content under a
// fresh temp directory and returns its root.
func writeTree(t *testing.T, files map[string][]byte) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, content, 0o644))
	}
	return root
}

func waitSession(t *testing.T, s *Session) *Summary {
	t.Helper()
	summary, err := s.Wait()
	require.NoError(t, err)
	return summary
}

func TestCreateStoreScenario(t *testing.T) {
	root := writeTree(t, map[string][]byte{
		"a.txt":   []byte("hello"),
		"b/c.bin": make([]byte, 1000),
	})
	out := filepath.Join(t.TempDir(), "out.csa")

	s, err := Create(root, out, Options{Selector: storeSelector})
	require.NoError(t, err)
	summary := waitSession(t, s)

	assert.Equal(t, 2, summary.Entries)
	assert.Equal(t, 2, summary.Written)
	assert.Empty(t, summary.Failed)
	assert.False(t, summary.Stopped)

	idx, fileSize, indexSize, err := format.ReadIndex(out)
	require.NoError(t, err)
	require.Len(t, idx, 2)

	// STORE never shrinks: compressed size equals original size.
	assert.Equal(t, uint64(1000), idx["b/c.bin"].CompSize)
	assert.Equal(t, uint64(1000), idx["b/c.bin"].OrigSize)
	assert.Equal(t, codec.MethodStore, idx["b/c.bin"].Method)

	// Header consistency: the size field equals the actual index
	// length, and the blob region ends exactly where the index starts.
	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte(format.Magic), raw[:3])
	indexStart := fileSize - int64(indexSize)
	assert.Equal(t, int64(format.HeaderSize+5+1000), indexStart)

	data, err := ExtractOne(out, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestCreateBlobRangesDisjoint(t *testing.T) {
	root := writeTree(t, map[string][]byte{
		"one":       bytes.Repeat([]byte("x"), 100),
		"two":       bytes.Repeat([]byte("y"), 200),
		"three/f":   bytes.Repeat([]byte("z"), 300),
		"three/g.b": {1, 2, 3},
	})
	out := filepath.Join(t.TempDir(), "out.csa")

	s, err := Create(root, out, Options{Selector: storeSelector})
	require.NoError(t, err)
	waitSession(t, s)

	idx, fileSize, indexSize, err := format.ReadIndex(out)
	require.NoError(t, err)

	type span struct{ start, end int64 }
	spans := make([]span, 0, len(idx))
	for _, entry := range idx {
		assert.GreaterOrEqual(t, entry.Start, int64(format.HeaderSize))
		assert.LessOrEqual(t, entry.Start+int64(entry.CompSize), fileSize-int64(indexSize))
		spans = append(spans, span{entry.Start, entry.Start + int64(entry.CompSize)})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		assert.GreaterOrEqual(t, spans[i].start, spans[i-1].end, "blob ranges must not overlap")
	}
}

func TestCreateEmptyRoot(t *testing.T) {
	out := filepath.Join(t.TempDir(), "empty.csa")
	s, err := Create(t.TempDir(), out, Options{})
	require.NoError(t, err)
	summary := waitSession(t, s)
	assert.Zero(t, summary.Entries)

	idx, _, _, err := format.ReadIndex(out)
	require.NoError(t, err)
	assert.Empty(t, idx)
}

func TestCreateMissingRoot(t *testing.T) {
	out := filepath.Join(t.TempDir(), "never.csa")
	_, err := Create(filepath.Join(t.TempDir(), "no-such-dir"), out, Options{})

	var scanErr *ScanError
	require.ErrorAs(t, err, &scanErr)

	// The scan aborts before any work: no output file is started.
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestScanRootDeterministicOrder(t *testing.T) {
	root := writeTree(t, map[string][]byte{
		"b.txt":     []byte("b"),
		"a.txt":     []byte("a"),
		"sub/x.bin": []byte("x"),
	})

	tasks, err := ScanRoot(root)
	require.NoError(t, err)
	rels := make([]string, len(tasks))
	for i, task := range tasks {
		rels[i] = task.RelPath
	}
	assert.Equal(t, []string{"a.txt", "b.txt", "sub/x.bin"}, rels)

	again, err := ScanRoot(root)
	require.NoError(t, err)
	assert.Equal(t, tasks, again)
}

func TestPerFileFailureContinuesBatch(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission-based failure injection does not work as root")
	}
	root := writeTree(t, map[string][]byte{
		"good.txt":   []byte("fine"),
		"locked.bin": []byte("unreadable"),
	})
	require.NoError(t, os.Chmod(filepath.Join(root, "locked.bin"), 0o000))
	out := filepath.Join(t.TempDir(), "out.csa")

	s, err := Create(root, out, Options{Selector: storeSelector})
	require.NoError(t, err)
	summary := waitSession(t, s)

	assert.Equal(t, 1, summary.Entries)
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, "locked.bin", summary.Failed[0].Path)
	var compErr *CompressionError
	assert.ErrorAs(t, summary.Failed[0].Err, &compErr)

	// The batch still produced a valid archive holding the good file.
	data, err := ExtractOne(out, "good.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("fine"), data)
}

func TestDefaultSelectorFallbackToStore(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	noise := make([]byte, 512)
	rng.Read(noise)
	root := writeTree(t, map[string][]byte{"noise.bin": noise})
	out := filepath.Join(t.TempDir(), "out.csa")

	s, err := Create(root, out, Options{})
	require.NoError(t, err)
	waitSession(t, s)

	idx, _, _, err := format.ReadIndex(out)
	require.NoError(t, err)
	entry := idx["noise.bin"]
	assert.Equal(t, codec.MethodStore, entry.Method,
		"incompressible data must persist the store id, not the attempted codec")
	assert.Equal(t, uint64(512), entry.CompSize)

	data, err := ExtractOne(out, "noise.bin")
	require.NoError(t, err)
	assert.Equal(t, noise, data)
}

func TestTextGoesThroughLZMA(t *testing.T) {
	text := bytes.Repeat([]byte("select * from sessions where id = 42;\n"), 100)
	root := writeTree(t, map[string][]byte{"dump.sql": text})
	out := filepath.Join(t.TempDir(), "out.csa")

	s, err := Create(root, out, Options{})
	require.NoError(t, err)
	waitSession(t, s)

	idx, _, _, err := format.ReadIndex(out)
	require.NoError(t, err)
	entry := idx["dump.sql"]
	assert.Equal(t, codec.MethodLZMA, entry.Method)
	assert.Less(t, entry.CompSize, entry.OrigSize)

	data, err := ExtractOne(out, "dump.sql")
	require.NoError(t, err)
	assert.Equal(t, text, data)
}

func TestCancellationLeavesParseableArchive(t *testing.T) {
	files := map[string][]byte{}
	for i := 0; i < 60; i++ {
		files[filepath.Join("d", string(rune('a'+i%26))+"-"+string(rune('0'+i/26)))] = []byte("payload")
	}
	root := writeTree(t, files)
	out := filepath.Join(t.TempDir(), "stopped.csa")

	slowStore := func(path string, sniff []byte) codec.Method {
		time.Sleep(10 * time.Millisecond)
		return codec.MethodStore
	}
	s, err := Create(root, out, Options{MaxWorkers: 4, Selector: slowStore})
	require.NoError(t, err)
	s.Stop()
	summary := waitSession(t, s)

	assert.True(t, summary.Stopped)
	assert.Less(t, summary.Entries, 60, "stop must prevent dispatching the full batch")

	// Whatever subset completed, the archive must be parseable with a
	// consistent header and exactly that many entries.
	idx, _, _, err := format.ReadIndex(out)
	require.NoError(t, err)
	assert.Len(t, idx, summary.Entries)
}

func TestExtractNotFound(t *testing.T) {
	root := writeTree(t, map[string][]byte{"a.txt": []byte("hello")})
	out := filepath.Join(t.TempDir(), "out.csa")
	s, err := Create(root, out, Options{Selector: storeSelector})
	require.NoError(t, err)
	waitSession(t, s)

	_, err = ExtractOne(out, "nope.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExtractDetectsCorruptBlob(t *testing.T) {
	root := writeTree(t, map[string][]byte{"a.txt": []byte("hello world")})
	out := filepath.Join(t.TempDir(), "out.csa")
	s, err := Create(root, out, Options{Selector: storeSelector})
	require.NoError(t, err)
	waitSession(t, s)

	idx, _, _, err := format.ReadIndex(out)
	require.NoError(t, err)
	entry := idx["a.txt"]

	f, err := os.OpenFile(out, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("H"), entry.Start)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = ExtractOne(out, "a.txt")
	var integrity *IntegrityError
	require.ErrorAs(t, err, &integrity,
		"a flipped blob byte keeps the length but must fail the digest")
}

func TestBrowseCorruptMagic(t *testing.T) {
	root := writeTree(t, map[string][]byte{"a.txt": []byte("hello")})
	out := filepath.Join(t.TempDir(), "out.csa")
	s, err := Create(root, out, Options{Selector: storeSelector})
	require.NoError(t, err)
	waitSession(t, s)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	copy(raw, "BAD")
	require.NoError(t, os.WriteFile(out, raw, 0o644))

	tree, err := Browse(out)
	var corrupt *format.CorruptArchiveError
	require.ErrorAs(t, err, &corrupt)
	assert.Nil(t, tree, "a corrupt archive must never yield a partial index")
}

func TestBrowseTree(t *testing.T) {
	root := writeTree(t, map[string][]byte{
		"a.txt":   []byte("hello"),
		"b/c.bin": make([]byte, 1000),
	})
	out := filepath.Join(t.TempDir(), "out.csa")
	s, err := Create(root, out, Options{Selector: storeSelector})
	require.NoError(t, err)
	waitSession(t, s)

	tree, err := Browse(out)
	require.NoError(t, err)
	assert.Equal(t, 2, tree.Files)
	assert.Equal(t, uint64(1005), tree.OrigSize)
	require.NotNil(t, tree.Lookup("b/c.bin"))
	assert.Equal(t, uint64(1000), tree.Lookup("b").CompSize)
}

func TestAppendAddsEntries(t *testing.T) {
	root := writeTree(t, map[string][]byte{"a.txt": []byte("hello")})
	out := filepath.Join(t.TempDir(), "out.csa")
	s, err := Create(root, out, Options{Selector: storeSelector})
	require.NoError(t, err)
	waitSession(t, s)

	extra := writeTree(t, map[string][]byte{"new/b.txt": []byte("appended")})
	s, err = Append(out, extra, Options{Selector: storeSelector})
	require.NoError(t, err)
	summary := waitSession(t, s)
	assert.Equal(t, 2, summary.Entries)

	idx, _, _, err := format.ReadIndex(out)
	require.NoError(t, err)
	require.Len(t, idx, 2)

	// Both the pre-existing and the appended entry extract cleanly:
	// appending never re-encodes or moves old blobs.
	data, err := ExtractOne(out, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
	data, err = ExtractOne(out, "new/b.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("appended"), data)
}

func TestAppendOverwritesExistingPath(t *testing.T) {
	root := writeTree(t, map[string][]byte{"a.txt": []byte("hello")})
	out := filepath.Join(t.TempDir(), "out.csa")
	s, err := Create(root, out, Options{Selector: storeSelector})
	require.NoError(t, err)
	waitSession(t, s)

	replacement := writeTree(t, map[string][]byte{"a.txt": []byte("goodbye!")})
	s, err = Append(out, replacement, Options{Selector: storeSelector})
	require.NoError(t, err)
	summary := waitSession(t, s)

	// Newest wins; the entry count is unchanged.
	assert.Equal(t, 1, summary.Entries)
	idx, fileSize, indexSize, err := format.ReadIndex(out)
	require.NoError(t, err)
	require.Len(t, idx, 1)

	data, err := ExtractOne(out, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("goodbye!"), data)

	// The superseded blob stays behind as dead space inside the blob
	// region; the file still parses and the new entry sits above it.
	assert.Greater(t, idx["a.txt"].Start, int64(format.HeaderSize))
	assert.LessOrEqual(t, idx["a.txt"].Start+int64(idx["a.txt"].CompSize), fileSize-int64(indexSize))
}

func TestAppendFailureLeavesArchiveUntouched(t *testing.T) {
	root := writeTree(t, map[string][]byte{"a.txt": []byte("hello")})
	out := filepath.Join(t.TempDir(), "out.csa")
	s, err := Create(root, out, Options{Selector: storeSelector})
	require.NoError(t, err)
	waitSession(t, s)

	before, err := os.ReadFile(out)
	require.NoError(t, err)

	_, err = Append(out, filepath.Join(t.TempDir(), "missing"), Options{})
	var scanErr *ScanError
	require.ErrorAs(t, err, &scanErr)

	after, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, before, after, "a failed append must leave the archive byte-for-byte unchanged")

	// No staging leftovers either.
	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestAppendRejectsCorruptArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.csa")
	require.NoError(t, os.WriteFile(path, []byte("definitely not an archive"), 0o644))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = Append(path, t.TempDir(), Options{})
	var corrupt *format.CorruptArchiveError
	require.ErrorAs(t, err, &corrupt)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestWriteFailureDiscardsLaterResults(t *testing.T) {
	root := writeTree(t, map[string][]byte{
		"a": []byte("1"), "b": []byte("2"), "c": []byte("3"),
	})
	tasks, err := ScanRoot(root)
	require.NoError(t, err)

	w, err := newArchiveWriter(filepath.Join(t.TempDir(), "dead.csa"))
	require.NoError(t, err)
	// Kill the handle under the writer so every blob write fails.
	require.NoError(t, w.f.Close())

	events := make(chan ProgressEvent, 16)
	opts := Options{Selector: storeSelector, Events: events}
	opts.withDefaults()

	s := newSession(len(tasks))
	summary, err := s.run(tasks, w, opts)
	require.Error(t, err)

	// Nothing was written, so nothing may be reported as written or
	// compressed; every file surfaces in the failure list instead of
	// vanishing.
	assert.Zero(t, summary.Written)
	assert.Len(t, summary.Failed, 3)
	completed, failed, _ := s.Progress()
	assert.Zero(t, completed)
	assert.Equal(t, 3, failed)

	close(events)
	for ev := range events {
		assert.NotEqual(t, "compressed", ev.Status,
			"unwritten blobs must not be announced as compressed")
	}
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{}
	opts.withDefaults()
	assert.GreaterOrEqual(t, opts.MaxWorkers, 4)
	assert.NotNil(t, opts.Selector)
}

func TestProgressEventsArrive(t *testing.T) {
	root := writeTree(t, map[string][]byte{
		"a": []byte("1"), "b": []byte("2"), "c": []byte("3"),
	})
	out := filepath.Join(t.TempDir(), "out.csa")
	events := make(chan ProgressEvent, 16)

	s, err := Create(root, out, Options{Selector: storeSelector, Events: events})
	require.NoError(t, err)
	summary := waitSession(t, s)
	assert.Equal(t, 3, summary.Entries)

	close(events)
	var sawFinal bool
	prevDone := -1
	for ev := range events {
		assert.Equal(t, s.ID, ev.SessionID)
		assert.Equal(t, 3, ev.Total)
		done := ev.Completed + ev.Failed
		assert.GreaterOrEqual(t, done, prevDone, "counters are monotonically non-decreasing")
		prevDone = done
		if ev.Status == "finalized" {
			sawFinal = true
		}
	}
	assert.True(t, sawFinal, "the finalize event fits in an idle buffered channel")
}
