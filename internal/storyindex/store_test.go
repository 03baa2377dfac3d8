package storyindex

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/starford/horizon/internal/apperr"
	"github.com/starford/horizon/internal/models"
	"github.com/starford/horizon/internal/settings"
	"github.com/starford/horizon/internal/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// workspace creates a story directory "stories" holding the given files.
func workspace(t require.TestingT, dir string, stories ...string) (*storage.FS, *Store, *settings.Board) {
	fs, err := storage.NewFS(dir)
	require.NoError(t, err)
	require.NoError(t, fs.Mkdir("stories"))
	for _, s := range stories {
		require.NoError(t, fs.Write("stories/"+s, []byte("# "+s)))
	}
	b := settings.Default()
	b.StoryDirectory = "stories"
	return fs, New(fs, quietLogger()), b
}

func record(t require.TestingT, fs *storage.FS, slug string) []string {
	data, err := fs.Read(RecordPath("stories", slug))
	require.NoError(t, err)
	var out []string
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func writeRecord(t require.TestingT, fs *storage.FS, slug string, members []string) {
	data, err := json.Marshal(members)
	require.NoError(t, err)
	require.NoError(t, fs.Write(RecordPath("stories", slug), data))
}

func filenames(stories []models.Story) []string {
	out := make([]string, len(stories))
	for i, s := range stories {
		out[i] = s.Filename
	}
	return out
}

func TestInitialize_SeedsFirstColumn(t *testing.T) {
	fs, st, b := workspace(t, t.TempDir(), "a.md", "b.md")
	require.NoError(t, st.Initialize(b))

	assert.Equal(t, []string{"a.md", "b.md"}, record(t, fs, "to-do"))
	assert.Empty(t, record(t, fs, "doing"))
	assert.Empty(t, record(t, fs, "done"))
}

func TestInitialize_Idempotent(t *testing.T) {
	fs, st, b := workspace(t, t.TempDir(), "a.md", "b.md")
	require.NoError(t, st.Initialize(b))

	snapshot := func() map[string]string {
		out := map[string]string{}
		for _, c := range b.Columns {
			data, err := fs.Read(RecordPath("stories", c.Slug))
			require.NoError(t, err)
			out[c.Slug] = string(data)
		}
		return out
	}
	first := snapshot()

	// A new story must not be seeded again once the index exists.
	require.NoError(t, fs.Write("stories/c.md", []byte("c")))
	require.NoError(t, st.Initialize(b))
	assert.Equal(t, first, snapshot())
}

func TestInitialize_AddsRecordForNewColumnOnly(t *testing.T) {
	fs, st, b := workspace(t, t.TempDir(), "a.md")
	require.NoError(t, st.Initialize(b))

	b.Columns = append(b.Columns, models.Column{Key: "Review", Label: "Review", Slug: "review"})
	require.NoError(t, st.Initialize(b))
	assert.Empty(t, record(t, fs, "review"))
	assert.Equal(t, []string{"a.md"}, record(t, fs, "to-do"))
}

func TestRead_ColdStartReturnsSeededState(t *testing.T) {
	_, st, b := workspace(t, t.TempDir(), "a.md", "b.md")

	cols, err := st.Read(b)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "b.md"}, filenames(cols["To Do"]))
	assert.Empty(t, cols["Doing"])
	assert.Empty(t, cols["Done"])
	assert.Len(t, cols, 3)
}

func TestRead_StoryFields(t *testing.T) {
	_, st, b := workspace(t, t.TempDir(), "PROJ-12.Fix login bug.md")
	cols, err := st.Read(b)
	require.NoError(t, err)
	require.Len(t, cols["To Do"], 1)
	s := cols["To Do"][0]
	assert.Equal(t, "PROJ-12", s.ID)
	assert.Equal(t, "Fix login bug", s.Title)
	assert.Equal(t, "PROJ-12.Fix login bug.md", s.Path)
}

func TestRead_DropsStaleEntryWithoutRewrite(t *testing.T) {
	fs, st, b := workspace(t, t.TempDir(), "a.md", "b.md")
	require.NoError(t, st.Initialize(b))
	before, err := fs.Read(RecordPath("stories", "to-do"))
	require.NoError(t, err)

	require.NoError(t, os.Remove(fs.Root()+"/stories/a.md"))

	cols, err := st.Read(b)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.md"}, filenames(cols["To Do"]))

	after, err := fs.Read(RecordPath("stories", "to-do"))
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestRead_CreatesMissingRecord(t *testing.T) {
	fs, st, b := workspace(t, t.TempDir(), "a.md")
	require.NoError(t, st.Initialize(b))
	require.NoError(t, os.Remove(fs.Root()+"/stories/.horizon/doing.json"))

	cols, err := st.Read(b)
	require.NoError(t, err)
	assert.Empty(t, cols["Doing"])
	assert.Empty(t, record(t, fs, "doing"))
}

func TestRead_DuplicatesShownOnce(t *testing.T) {
	fs, st, b := workspace(t, t.TempDir(), "a.md", "b.md")
	require.NoError(t, st.Initialize(b))
	writeRecord(t, fs, "doing", []string{"b.md", "b.md"})

	cols, err := st.Read(b)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.md"}, filenames(cols["Doing"]))
}

func TestRead_CorruptRecordReadsEmpty(t *testing.T) {
	fs, st, b := workspace(t, t.TempDir(), "a.md")
	require.NoError(t, st.Initialize(b))
	require.NoError(t, fs.Write(RecordPath("stories", "to-do"), []byte("{not json")))

	cols, err := st.Read(b)
	require.NoError(t, err)
	assert.Empty(t, cols["To Do"])

	// The broken record is left for the user to fix.
	data, _ := fs.Read(RecordPath("stories", "to-do"))
	assert.Equal(t, "{not json", string(data))

	err = st.Move("a.md", "To Do", "Done", b)
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestRead_KeepsRecordOrder(t *testing.T) {
	fs, st, b := workspace(t, t.TempDir(), "a.md", "b.md", "c.md")
	require.NoError(t, st.Initialize(b))
	writeRecord(t, fs, "to-do", []string{"c.md", "a.md", "b.md"})

	cols, err := st.Read(b)
	require.NoError(t, err)
	assert.Equal(t, []string{"c.md", "a.md", "b.md"}, filenames(cols["To Do"]))
}

func TestMove_Basic(t *testing.T) {
	fs, st, b := workspace(t, t.TempDir(), "a.md", "b.md")
	require.NoError(t, st.Initialize(b))

	require.NoError(t, st.Move("a.md", "To Do", "Doing", b))
	assert.Equal(t, []string{"b.md"}, record(t, fs, "to-do"))
	assert.Equal(t, []string{"a.md"}, record(t, fs, "doing"))

	cols, err := st.Read(b)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md"}, filenames(cols["Doing"]))
}

func TestMove_AcceptsPathAndUsesBaseName(t *testing.T) {
	fs, st, b := workspace(t, t.TempDir(), "a.md")
	require.NoError(t, st.Move(fs.Root()+"/stories/a.md", "To Do", "Done", b))
	assert.Equal(t, []string{"a.md"}, record(t, fs, "done"))
}

func TestMove_AbsentFromSourceStillAdds(t *testing.T) {
	fs, st, b := workspace(t, t.TempDir(), "a.md")
	require.NoError(t, st.Initialize(b))

	require.NoError(t, st.Move("a.md", "Doing", "Done", b))
	assert.Empty(t, record(t, fs, "doing"))
	assert.Equal(t, []string{"a.md"}, record(t, fs, "done"))
}

func TestMove_DuplicateSafe(t *testing.T) {
	fs, st, b := workspace(t, t.TempDir(), "a.md")
	require.NoError(t, st.Initialize(b))
	writeRecord(t, fs, "done", []string{"a.md"})

	require.NoError(t, st.Move("a.md", "To Do", "Done", b))
	assert.Equal(t, []string{"a.md"}, record(t, fs, "done"))

	cols, err := st.Read(b)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md"}, filenames(cols["Done"]))
}

func TestMove_SameColumn(t *testing.T) {
	fs, st, b := workspace(t, t.TempDir(), "a.md", "b.md")
	require.NoError(t, st.Initialize(b))

	require.NoError(t, st.Move("a.md", "To Do", "To Do", b))
	assert.Equal(t, []string{"a.md", "b.md"}, record(t, fs, "to-do"))

	require.NoError(t, st.Move("a.md", "Doing", "Doing", b))
	assert.Equal(t, []string{"a.md"}, record(t, fs, "doing"))
}

func TestMove_ColdStartInitializesFirst(t *testing.T) {
	fs, st, b := workspace(t, t.TempDir(), "a.md", "b.md")
	require.NoError(t, st.Move("a.md", "To Do", "Done", b))
	assert.Equal(t, []string{"b.md"}, record(t, fs, "to-do"))
	assert.Equal(t, []string{"a.md"}, record(t, fs, "done"))
}

func TestMove_WritesPrettyRecords(t *testing.T) {
	fs, st, b := workspace(t, t.TempDir(), "a.md")
	require.NoError(t, st.Move("a.md", "To Do", "Doing", b))

	data, err := fs.Read(RecordPath("stories", "doing"))
	require.NoError(t, err)
	assert.Equal(t, "[\n  \"a.md\"\n]", string(data))

	data, err = fs.Read(RecordPath("stories", "to-do"))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestMove_Preconditions(t *testing.T) {
	_, st, base := workspace(t, t.TempDir(), "a.md")

	cases := map[string]func(b *settings.Board) (string, string){
		"virtualization disabled": func(b *settings.Board) (string, string) {
			b.UseVirtualization = false
			return "To Do", "Done"
		},
		"no story directory": func(b *settings.Board) (string, string) {
			b.StoryDirectory = ""
			return "To Do", "Done"
		},
		"story directory missing": func(b *settings.Board) (string, string) {
			b.StoryDirectory = "elsewhere"
			return "To Do", "Done"
		},
		"unknown source": func(b *settings.Board) (string, string) {
			return "Backlog", "Done"
		},
		"unknown target": func(b *settings.Board) (string, string) {
			return "To Do", "Archive"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			b := *base
			src, dst := mutate(&b)
			err := st.Move("a.md", src, dst, &b)
			assert.ErrorIs(t, err, apperr.ErrPrecondition)
		})
	}
}

func TestMove_RejectsNonStoryNames(t *testing.T) {
	fs, st, b := workspace(t, t.TempDir(), "a.md")
	require.NoError(t, st.Initialize(b))

	for _, name := range []string{"..", "stories/..", "notes.txt", ".", ""} {
		t.Run(name, func(t *testing.T) {
			err := st.Move(name, "To Do", "Done", b)
			assert.ErrorIs(t, err, apperr.ErrPrecondition)
		})
	}
	assert.Empty(t, record(t, fs, "done"))
	assert.Equal(t, []string{"a.md"}, record(t, fs, "to-do"))
}

func TestRead_Preconditions(t *testing.T) {
	_, st, b := workspace(t, t.TempDir(), "a.md")
	b.UseVirtualization = false
	cols, err := st.Read(b)
	assert.ErrorIs(t, err, apperr.ErrPrecondition)
	assert.NotNil(t, cols)
	assert.Empty(t, cols)
}

func TestMove_ConcurrentMovesAreSerialized(t *testing.T) {
	const n = 20
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("S-%02d.Story.md", i)
	}
	fs, st, b := workspace(t, t.TempDir(), names...)
	require.NoError(t, st.Initialize(b))

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, st.Move(name, "To Do", "Done", b))
		}()
	}
	wg.Wait()

	assert.Empty(t, record(t, fs, "to-do"))
	done := record(t, fs, "done")
	slices.Sort(done)
	assert.Equal(t, names, done)
}

func TestUnassigned(t *testing.T) {
	fs, st, b := workspace(t, t.TempDir(), "a.md", "b.md", "c.md")
	require.NoError(t, st.Initialize(b))
	writeRecord(t, fs, "to-do", []string{"a.md"})
	writeRecord(t, fs, "done", []string{"c.md", "ghost.md"})

	got, err := st.Unassigned(b)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.md"}, filenames(got))
}

func TestScanIgnoresSubdirectoriesAndOtherFiles(t *testing.T) {
	fs, st, b := workspace(t, t.TempDir(), "a.md")
	require.NoError(t, fs.Write("stories/notes.txt", []byte("x")))
	require.NoError(t, fs.Write("stories/Archive/old.md", []byte("x")))

	require.NoError(t, st.Initialize(b))
	assert.Equal(t, []string{"a.md"}, record(t, fs, "to-do"))

	require.NoError(t, fs.Write("stories/b.md", []byte("x")))
	got, err := st.Unassigned(b)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.md"}, filenames(got))

	cols, err := st.Read(b)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md"}, filenames(cols["To Do"]))
}

func TestUnassigned_BeforeInitializeListsEverything(t *testing.T) {
	fs, st, b := workspace(t, t.TempDir(), "a.md", "b.md")
	got, err := st.Unassigned(b)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "b.md"}, filenames(got))

	ok, _ := fs.IsDir(Dir("stories"))
	assert.False(t, ok, "Unassigned must not create the index")
}

func TestOrphans(t *testing.T) {
	fs, st, b := workspace(t, t.TempDir(), "a.md")

	got, err := st.Orphans(b)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, st.Initialize(b))
	writeRecord(t, fs, "backlog", []string{"a.md"})
	writeRecord(t, fs, "archive", nil)

	got, err = st.Orphans(b)
	require.NoError(t, err)
	assert.Equal(t, []string{"archive", "backlog"}, got)

	ok, _ := fs.Exists(RecordPath("stories", "backlog"))
	assert.True(t, ok, "orphaned records are never deleted")
}

// Property: move(f, A, B) then move(f, B, A) leaves f in A and absent from
// B, whatever the prior state of the records.
func TestMove_RoundTripProperty(t *testing.T) {
	names := []string{"s0.md", "s1.md", "s2.md", "s3.md"}
	rapid.Check(t, func(rt *rapid.T) {
		dir, err := os.MkdirTemp("", "horizon-rapid-*")
		require.NoError(rt, err)
		defer os.RemoveAll(dir)

		fs, st, b := workspace(rt, dir, names...)
		require.NoError(rt, st.Initialize(b))
		for _, c := range b.Columns {
			members := rapid.SliceOfN(rapid.SampledFrom(names), 0, 6).Draw(rt, "members-"+c.Slug)
			writeRecord(rt, fs, c.Slug, members)
		}

		f := rapid.SampledFrom(names).Draw(rt, "story")
		ai := rapid.IntRange(0, len(b.Columns)-1).Draw(rt, "a")
		bi := (ai + rapid.IntRange(1, len(b.Columns)-1).Draw(rt, "offset")) % len(b.Columns)
		colA, colB := b.Columns[ai], b.Columns[bi]

		require.NoError(rt, st.Move(f, colA.Key, colB.Key, b))
		require.NoError(rt, st.Move(f, colB.Key, colA.Key, b))

		assert.Contains(rt, record(rt, fs, colA.Slug), f)
		assert.NotContains(rt, record(rt, fs, colB.Slug), f)

		cols, err := st.Read(b)
		require.NoError(rt, err)
		count := 0
		for _, s := range cols[colA.Key] {
			if s.Filename == f {
				count++
			}
		}
		assert.Equal(rt, 1, count)
	})
}

// Property: after any move the target record holds the story exactly once.
func TestMove_NoDuplicatesProperty(t *testing.T) {
	names := []string{"s0.md", "s1.md", "s2.md"}
	rapid.Check(t, func(rt *rapid.T) {
		dir, err := os.MkdirTemp("", "horizon-rapid-*")
		require.NoError(rt, err)
		defer os.RemoveAll(dir)

		fs, st, b := workspace(rt, dir, names...)
		require.NoError(rt, st.Initialize(b))

		steps := rapid.IntRange(1, 10).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			f := rapid.SampledFrom(names).Draw(rt, "story")
			src := rapid.SampledFrom(b.Columns).Draw(rt, "src")
			dst := rapid.SampledFrom(b.Columns).Draw(rt, "dst")
			require.NoError(rt, st.Move(f, src.Key, dst.Key, b))

			occurrences := 0
			for _, m := range record(rt, fs, dst.Slug) {
				if m == f {
					occurrences++
				}
			}
			assert.Equal(rt, 1, occurrences)
		}
	})
}
