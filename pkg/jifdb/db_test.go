package jifdb_test

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/jifdb/pkg/fs"
	"github.com/calvinalkan/jifdb/pkg/jifdb"
)

// openTestDB opens a database on a fresh temp dir and closes it at cleanup
// if the test left it open.
func openTestDB(t *testing.T, cfg jifdb.Config) *jifdb.DB {
	t.Helper()

	db := jifdb.New(cfg)
	require.NoError(t, db.Open(filepath.Join(t.TempDir(), "db"), jifdb.OpenOptions{}))

	t.Cleanup(func() {
		if db.IsOpen() {
			_ = db.Close()
		}
	})

	return db
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(data)
}

func Test_DB_Open_Creates_Root_Directory_When_Missing(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "a", "b")
	db := jifdb.New(jifdb.Config{})

	require.NoError(t, db.Open(root, jifdb.OpenOptions{}))

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, db.IsOpen())
	assert.Equal(t, root, db.RootPath())

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "open must not create collection files")

	require.NoError(t, db.Close())
	assert.False(t, db.IsOpen())
	assert.Empty(t, db.RootPath())
}

func Test_DB_Open_Returns_AlreadyOpen_And_Keeps_Root_When_Called_Twice(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, jifdb.Config{})
	root := db.RootPath()

	err := db.Open(filepath.Join(t.TempDir(), "other"), jifdb.OpenOptions{})
	require.ErrorIs(t, err, jifdb.ErrAlreadyOpen)

	assert.Equal(t, root, db.RootPath())
}

func Test_DB_Open_Uses_Default_Root_When_Path_Blank(t *testing.T) {
	t.Parallel()

	faulty := fs.NewFaulty(fs.NewReal())
	faulty.Fail(fs.OpMkdirAll, "", syscall.EROFS)

	db := jifdb.New(jifdb.Config{FS: faulty})

	err := db.Open("  ", jifdb.OpenOptions{})
	require.ErrorIs(t, err, jifdb.ErrDirectoryCreate)

	var jErr *jifdb.Error
	require.ErrorAs(t, err, &jErr)
	assert.Equal(t, jifdb.DefaultRootPath, jErr.Path)
	assert.False(t, db.IsOpen())
}

func Test_DB_Open_Returns_DirectoryCreate_When_Parent_Is_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	writeFile(t, blocker, "x")

	db := jifdb.New(jifdb.Config{})

	err := db.Open(filepath.Join(blocker, "db"), jifdb.OpenOptions{})
	require.ErrorIs(t, err, jifdb.ErrDirectoryCreate)
	assert.False(t, db.IsOpen())
}

func Test_DB_Returns_NotOpen_When_Closed(t *testing.T) {
	t.Parallel()

	db := jifdb.New(jifdb.Config{})

	_, err := db.OpenCollection("users")
	require.ErrorIs(t, err, jifdb.ErrNotOpen)

	require.ErrorIs(t, db.CloseCollection("users"), jifdb.ErrNotOpen)
	require.ErrorIs(t, db.SaveCollection("users"), jifdb.ErrNotOpen)
	require.ErrorIs(t, db.DeleteCollection("users"), jifdb.ErrNotOpen)
	require.ErrorIs(t, db.SaveAll(), jifdb.ErrNotOpen)
	require.ErrorIs(t, db.Close(), jifdb.ErrNotOpen)

	_, err = db.ListCollections()
	require.ErrorIs(t, err, jifdb.ErrNotOpen)
}

func Test_DB_OpenCollection_Creates_Empty_File_When_Missing(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, jifdb.Config{})

	users, err := db.OpenCollection("users")
	require.NoError(t, err)

	path := filepath.Join(db.RootPath(), "users.json")
	assert.Equal(t, path, users.Path())
	assert.Equal(t, "users", users.Name())
	assert.Equal(t, "{\n  \"next_id\": 1,\n  \"list\": []\n}\n", readFile(t, path))
	assert.False(t, users.Dirty())
}

func Test_DB_OpenCollection_Returns_Same_Handle_When_Already_Registered(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, jifdb.Config{})

	first, err := db.OpenCollection("users")
	require.NoError(t, err)

	_, err = first.Create(jifdb.Document{"firstname": "A"})
	require.NoError(t, err)

	// Unsaved state must survive; the file is not reread.
	second, err := db.OpenCollection("users")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, second.Len())
}

func Test_DB_OpenCollection_Rejects_Invalid_Names_Without_Touching_Disk(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, jifdb.Config{})

	for _, name := range []string{"", "../etc", "a{b", "a/b", "users\x00"} {
		_, err := db.OpenCollection(name)
		require.ErrorIs(t, err, jifdb.ErrInvalidName, "name %q", name)
	}

	entries, err := os.ReadDir(db.RootPath())
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = os.Stat(filepath.Join(filepath.Dir(db.RootPath()), "etc.json"))
	assert.True(t, os.IsNotExist(err))

	assert.Empty(t, db.Collections())
}

func Test_DB_OpenCollection_Returns_Corrupted_And_Registers_Nothing_When_File_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{name: "not json", content: "not json"},
		{name: "empty", content: ""},
		{name: "missing list", content: `{"next_id": 1}`},
		{name: "missing next_id", content: `{"list": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db := openTestDB(t, jifdb.Config{})
			path := filepath.Join(db.RootPath(), "users.json")
			writeFile(t, path, tt.content)

			_, err := db.OpenCollection("users")
			require.ErrorIs(t, err, jifdb.ErrCorrupted)

			var jErr *jifdb.Error
			require.ErrorAs(t, err, &jErr)
			assert.Equal(t, "users", jErr.Collection)
			assert.Equal(t, path, jErr.Path)

			assert.Empty(t, db.Collections())
			assert.Equal(t, tt.content, readFile(t, path), "corrupted file must not be rewritten")
		})
	}
}

func Test_DB_OpenCollection_Returns_Corrupted_When_Read_Fails(t *testing.T) {
	t.Parallel()

	faulty := fs.NewFaulty(fs.NewReal())
	db := openTestDB(t, jifdb.Config{FS: faulty})

	writeFile(t, filepath.Join(db.RootPath(), "users.json"), `{"next_id": 1, "list": []}`)
	faulty.Fail(fs.OpReadFile, "users.json", syscall.EIO)

	_, err := db.OpenCollection("users")
	require.ErrorIs(t, err, jifdb.ErrCorrupted)
	require.ErrorIs(t, err, syscall.EIO)
}

func Test_DB_OpenCollection_Returns_Create_Error_When_File_Cannot_Be_Created(t *testing.T) {
	t.Parallel()

	faulty := fs.NewFaulty(fs.NewReal())
	db := openTestDB(t, jifdb.Config{FS: faulty})

	faulty.Fail(fs.OpOpenFile, "users.json", syscall.EACCES)

	_, err := db.OpenCollection("users")
	require.ErrorIs(t, err, jifdb.ErrCreate)
	assert.True(t, fs.IsInjected(err))
	assert.Empty(t, db.Collections())

	_, statErr := os.Stat(filepath.Join(db.RootPath(), "users.json"))
	assert.True(t, os.IsNotExist(statErr))
}

func Test_DB_SaveCollection_Writes_Once_When_Saved_Twice(t *testing.T) {
	t.Parallel()

	faulty := fs.NewFaulty(fs.NewReal())
	db := openTestDB(t, jifdb.Config{FS: faulty})

	users, err := db.OpenCollection("users")
	require.NoError(t, err)

	// Saving a clean collection is a no-op.
	require.NoError(t, db.SaveCollection("users"))
	assert.Equal(t, 0, faulty.Count(fs.OpWriteFileAtomic))

	_, err = users.Create(jifdb.Document{"firstname": "A"})
	require.NoError(t, err)

	require.NoError(t, db.SaveCollection("users"))
	require.NoError(t, db.SaveCollection("users"))

	assert.Equal(t, 1, faulty.Count(fs.OpWriteFileAtomic))
	assert.False(t, users.Dirty())

	want := "{\n  \"next_id\": 2,\n  \"list\": [\n    {\n      \"firstname\": \"A\",\n      \"id\": 1\n    }\n  ]\n}\n"
	assert.Equal(t, want, readFile(t, users.Path()))
}

func Test_DB_SaveCollection_Keeps_Dirty_And_File_When_Write_Fails(t *testing.T) {
	t.Parallel()

	faulty := fs.NewFaulty(fs.NewReal())
	db := openTestDB(t, jifdb.Config{FS: faulty})

	users, err := db.OpenCollection("users")
	require.NoError(t, err)

	before := readFile(t, users.Path())

	_, err = users.Create(jifdb.Document{"firstname": "A"})
	require.NoError(t, err)

	faulty.Fail(fs.OpWriteFileAtomic, "users.json", syscall.ENOSPC)

	err = db.SaveCollection("users")
	require.ErrorIs(t, err, jifdb.ErrSave)
	require.ErrorIs(t, err, syscall.ENOSPC)

	assert.True(t, users.Dirty())
	assert.Equal(t, before, readFile(t, users.Path()))

	faulty.Clear()

	require.NoError(t, db.SaveCollection("users"))
	assert.False(t, users.Dirty())
}

func Test_DB_Collection_Operations_Return_UnknownCollection_When_Not_Registered(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, jifdb.Config{})

	require.ErrorIs(t, db.SaveCollection("users"), jifdb.ErrUnknownCollection)
	require.ErrorIs(t, db.CloseCollection("users"), jifdb.ErrUnknownCollection)
	require.ErrorIs(t, db.DeleteCollection("users"), jifdb.ErrUnknownCollection)
	require.ErrorIs(t, db.SaveCollection("a/b"), jifdb.ErrInvalidName)
}

func Test_DB_CloseCollection_Saves_And_Unregisters(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, jifdb.Config{})

	users, err := db.OpenCollection("users")
	require.NoError(t, err)

	_, err = users.Create(jifdb.Document{"firstname": "A"})
	require.NoError(t, err)

	require.NoError(t, db.CloseCollection("users"))

	assert.Empty(t, db.Collections())
	assert.Contains(t, readFile(t, users.Path()), `"firstname": "A"`)
	require.ErrorIs(t, db.CloseCollection("users"), jifdb.ErrUnknownCollection)
}

func Test_DB_CloseCollection_Stays_Registered_When_Save_Fails(t *testing.T) {
	t.Parallel()

	faulty := fs.NewFaulty(fs.NewReal())
	db := openTestDB(t, jifdb.Config{FS: faulty})

	users, err := db.OpenCollection("users")
	require.NoError(t, err)

	_, err = users.Create(jifdb.Document{})
	require.NoError(t, err)

	faulty.Fail(fs.OpWriteFileAtomic, "", syscall.EIO)

	require.ErrorIs(t, db.CloseCollection("users"), jifdb.ErrSave)
	assert.Equal(t, []string{"users"}, db.Collections())

	_, err = users.Read()
	require.NoError(t, err, "handle must stay usable")
}

func Test_DB_DeleteCollection_Removes_File_And_Registration(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, jifdb.Config{})

	users, err := db.OpenCollection("users")
	require.NoError(t, err)

	_, err = users.Create(jifdb.Document{"firstname": "A"})
	require.NoError(t, err)

	require.NoError(t, db.DeleteCollection("users"))

	_, err = os.Stat(users.Path())
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, db.Collections())

	_, err = users.Read()
	require.ErrorIs(t, err, jifdb.ErrCollectionClosed)

	// Reopening starts over.
	fresh, err := db.OpenCollection("users")
	require.NoError(t, err)
	assert.Equal(t, 0, fresh.Len())
	assert.Equal(t, int64(1), fresh.NextID())
}

func Test_DB_DeleteCollection_Renames_To_Backup_When_Enabled(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	db := openTestDB(t, jifdb.Config{
		BackupOnDelete: true,
		Now:            func() time.Time { return now },
	})

	users, err := db.OpenCollection("users")
	require.NoError(t, err)

	_, err = users.Create(jifdb.Document{"firstname": "A"})
	require.NoError(t, err)

	require.NoError(t, db.DeleteCollection("users"))

	_, err = os.Stat(users.Path())
	assert.True(t, os.IsNotExist(err))

	backup := readFile(t, users.Path()+".1700000000.bak")
	assert.Contains(t, backup, `"firstname": "A"`, "pending changes are saved before the rename")

	names, err := db.ListCollections()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func Test_DB_DeleteCollection_Returns_Delete_Error_And_Stays_Registered_When_Remove_Fails(t *testing.T) {
	t.Parallel()

	faulty := fs.NewFaulty(fs.NewReal())
	db := openTestDB(t, jifdb.Config{FS: faulty})

	users, err := db.OpenCollection("users")
	require.NoError(t, err)

	faulty.Fail(fs.OpRemove, "users.json", syscall.EPERM)

	err = db.DeleteCollection("users")
	require.ErrorIs(t, err, jifdb.ErrDelete)

	var jErr *jifdb.Error
	require.ErrorAs(t, err, &jErr)
	assert.Equal(t, "users", jErr.Collection)

	assert.Equal(t, []string{"users"}, db.Collections())
	assert.FileExists(t, users.Path())
}

func Test_DB_Close_Saves_Dirty_Collections_And_Invalidates_Handles(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, jifdb.Config{})

	users, err := db.OpenCollection("users")
	require.NoError(t, err)

	posts, err := db.OpenCollection("posts")
	require.NoError(t, err)

	_, err = users.Create(jifdb.Document{"firstname": "A"})
	require.NoError(t, err)

	_, err = posts.Create(jifdb.Document{"title": "hello"})
	require.NoError(t, err)

	require.NoError(t, db.Close())

	assert.Contains(t, readFile(t, users.Path()), `"firstname": "A"`)
	assert.Contains(t, readFile(t, posts.Path()), `"title": "hello"`)

	_, err = users.Read()
	require.ErrorIs(t, err, jifdb.ErrCollectionClosed)
}

func Test_DB_Close_Stops_At_First_Failure_And_Stays_Open(t *testing.T) {
	t.Parallel()

	faulty := fs.NewFaulty(fs.NewReal())
	db := openTestDB(t, jifdb.Config{FS: faulty})

	var handles []*jifdb.Collection

	for _, name := range []string{"a", "b", "c"} {
		c, err := db.OpenCollection(name)
		require.NoError(t, err)

		_, err = c.Create(jifdb.Document{"name": name})
		require.NoError(t, err)

		handles = append(handles, c)
	}

	faulty.Fail(fs.OpWriteFileAtomic, string(filepath.Separator)+"b.json", syscall.ENOSPC)

	err := db.Close()
	require.ErrorIs(t, err, jifdb.ErrSave)

	var jErr *jifdb.Error
	require.ErrorAs(t, err, &jErr)
	assert.Equal(t, "b", jErr.Collection)

	assert.True(t, db.IsOpen())
	assert.Equal(t, []string{"a", "b", "c"}, db.Collections())

	assert.False(t, handles[0].Dirty(), "a was saved before the failure")
	assert.True(t, handles[1].Dirty())
	assert.True(t, handles[2].Dirty(), "c is not attempted after b fails")

	faulty.Clear()

	require.NoError(t, db.Close())
	assert.False(t, db.IsOpen())
}

func Test_DB_Can_Reopen_After_Close(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, jifdb.Config{})
	require.NoError(t, db.Close())

	other := filepath.Join(t.TempDir(), "other")
	require.NoError(t, db.Open(other, jifdb.OpenOptions{}))
	assert.Equal(t, other, db.RootPath())
	assert.Empty(t, db.Collections())
}

func Test_DB_SaveAll_Saves_Every_Dirty_Collection_And_Stays_Open(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, jifdb.Config{})

	users, err := db.OpenCollection("users")
	require.NoError(t, err)

	_, err = users.Create(jifdb.Document{"firstname": "A"})
	require.NoError(t, err)

	require.NoError(t, db.SaveAll())

	assert.False(t, users.Dirty())
	assert.True(t, db.IsOpen())

	_, err = users.Read()
	require.NoError(t, err)
}

func Test_DB_ListCollections_Returns_Collection_Files_On_Disk(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, jifdb.Config{})

	_, err := db.OpenCollection("users")
	require.NoError(t, err)

	root := db.RootPath()
	writeFile(t, filepath.Join(root, "posts.json"), `{"next_id": 1, "list": []}`)
	writeFile(t, filepath.Join(root, "notes.txt"), "x")
	writeFile(t, filepath.Join(root, "bad{name}.json"), "{}")
	writeFile(t, filepath.Join(root, "users.json.1.bak"), "{}")
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir.json"), 0o755))

	names, err := db.ListCollections()
	require.NoError(t, err)

	assert.Equal(t, []string{"posts", "users"}, names)
	assert.Equal(t, []string{"users"}, db.Collections())
}

func Test_DB_HasCollection_Reports_Files_Without_Creating_Them(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, jifdb.Config{})
	root := db.RootPath()

	_, err := db.OpenCollection("users")
	require.NoError(t, err)

	writeFile(t, filepath.Join(root, "posts.json"), `{"next_id": 1, "list": []}`)

	for name, want := range map[string]bool{"users": true, "posts": true, "comments": false} {
		got, err := db.HasCollection(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}

	_, err = os.Stat(filepath.Join(root, "comments.json"))
	assert.True(t, os.IsNotExist(err))

	_, err = db.HasCollection("../etc")
	require.ErrorIs(t, err, jifdb.ErrInvalidName)

	require.NoError(t, db.Close())

	_, err = db.HasCollection("users")
	require.ErrorIs(t, err, jifdb.ErrNotOpen)
}

func Test_DB_Persists_Documents_When_Reopened_In_New_Instance(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "db")

	db := jifdb.New(jifdb.Config{})
	require.NoError(t, db.Open(root, jifdb.OpenOptions{}))

	users, err := db.OpenCollection("users")
	require.NoError(t, err)

	a, err := users.Create(jifdb.Document{"firstname": "A"})
	require.NoError(t, err)

	b, err := users.Create(jifdb.Document{"firstname": "B"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), a["id"])
	assert.Equal(t, int64(2), b["id"])

	docs, err := users.Read()
	require.NoError(t, err)
	require.Len(t, docs, 2)

	require.NoError(t, db.Close())

	again := jifdb.New(jifdb.Config{})
	require.NoError(t, again.Open(root, jifdb.OpenOptions{}))

	t.Cleanup(func() { _ = again.Close() })

	reloaded, err := again.OpenCollection("users")
	require.NoError(t, err)

	got, err := reloaded.Read()
	require.NoError(t, err)

	if diff := cmp.Diff(docs, got); diff != "" {
		t.Fatalf("reloaded documents differ (-before +after):\n%s", diff)
	}

	assert.Equal(t, int64(3), reloaded.NextID())

	c, err := reloaded.Create(jifdb.Document{"firstname": "C"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), c["id"])
}

func Test_DB_Logs_Diagnostics_Only_When_Verbose(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, nil))
	db := jifdb.New(jifdb.Config{Logger: logger})

	root := filepath.Join(t.TempDir(), "db")

	require.NoError(t, db.Open(root, jifdb.OpenOptions{}))
	_, err := db.OpenCollection("quiet")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	assert.Empty(t, buf.String())

	require.NoError(t, db.Open(root, jifdb.OpenOptions{Verbose: true}))
	_, err = db.OpenCollection("loud")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	out := buf.String()
	assert.Contains(t, out, "opened database")
	assert.Contains(t, out, "created collection file")
	assert.Contains(t, out, "collection=loud")
	assert.Contains(t, out, "closed database")
	assert.False(t, strings.Contains(out, "collection=quiet"))
}

func Test_DB_Error_Message_Names_Collection_And_Cause(t *testing.T) {
	t.Parallel()

	faulty := fs.NewFaulty(fs.NewReal())
	db := openTestDB(t, jifdb.Config{FS: faulty})

	users, err := db.OpenCollection("users")
	require.NoError(t, err)

	_, err = users.Create(jifdb.Document{})
	require.NoError(t, err)

	faulty.Fail(fs.OpWriteFileAtomic, "", syscall.ENOSPC)

	err = db.SaveCollection("users")
	require.Error(t, err)

	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "save collection failed: "), msg)
	assert.Contains(t, msg, "no space left on device")
	assert.True(t, strings.HasSuffix(msg, "(collection=users path="+users.Path()+")"), msg)
	assert.True(t, errors.Is(err, syscall.ENOSPC))
}
