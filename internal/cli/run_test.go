package cli_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/calvinalkan/jifdb/internal/cli"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	err := os.WriteFile(path, []byte(content), 0o600)
	if err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func Test_Run_Prints_Usage_When_No_Command(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun()

	cli.AssertContains(t, stdout, "Usage: jifdb [options] <command> [args]")

	for _, name := range []string{"collections", "create", "get", "update", "delete", "drop", "export", "serve", "shell", "print-config"} {
		cli.AssertContains(t, stdout, "  "+name)
	}
}

func Test_Run_Prints_Usage_When_Help_Flag(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	cli.AssertContains(t, c.MustRun("--help"), "Commands:")
	cli.AssertContains(t, c.MustRun("-h"), "--db dir")
}

func Test_Run_Fails_When_Command_Unknown(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("frobnicate")

	cli.AssertContains(t, stderr, "error: unknown command: frobnicate")
	cli.AssertContains(t, stderr, "Usage:")
}

func Test_Run_Fails_When_Global_Flag_Unknown(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("--bogus", "collections")

	cli.AssertContains(t, stderr, "unknown flag: --bogus")
}

func Test_Run_Prints_Command_Help_When_Config_Broken(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	writeFile(t, filepath.Join(c.Dir, ".jifdb.json"), `{broken`)

	stdout := c.MustRun("update", "--help")
	cli.AssertContains(t, stdout, "Usage: jifdb update <collection> <id> [json]")
	cli.AssertContains(t, stdout, "--replace")
}

func Test_Run_Fails_When_Argument_Count_Wrong(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	cli.AssertContains(t, c.MustFail("get"), "wrong number of arguments")
	cli.AssertContains(t, c.MustFail("delete", "users"), "usage: jifdb delete <collection> <id>")
	cli.AssertContains(t, c.MustFail("collections", "extra"), "wrong number of arguments")
}

func Test_Run_Fails_When_Command_Flag_Unknown(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("get", "--nope", "users")

	cli.AssertContains(t, stderr, "unknown flag: --nope")
	cli.AssertContains(t, stderr, "Usage: jifdb get <collection> [id]")
}
