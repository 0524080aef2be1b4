package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/dev-tams/sqlbackup/internal/config"
)

// MySQLDumper runs mysqldump. Credentials travel through a short-lived
// option file, never through argv, so they do not show up in process listings.
type MySQLDumper struct {
	Binary  string
	TempDir string
	Log     *zap.Logger
}

func (d MySQLDumper) binary() string {
	if d.Binary == "" {
		return "mysqldump"
	}
	return d.Binary
}

func (d MySQLDumper) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

// dumpArgs builds the argv. --defaults-extra-file has to come first or
// mysqldump ignores it.
func dumpArgs(defaultsFile string, conn config.DatabaseConfig) []string {
	return []string{
		"--defaults-extra-file=" + defaultsFile,
		// no LOCK TABLES privilege needed
		"--skip-lock-tables",
		// tablespace info needs PROCESS
		"--no-tablespaces",
		// consistent snapshot without holding locks
		"--single-transaction",
		conn.Name,
	}
}

func optionValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func defaultsFileContent(conn config.DatabaseConfig) []byte {
	var b bytes.Buffer
	b.WriteString("[client]\n")
	b.WriteString("user=" + optionValue(conn.User) + "\n")
	b.WriteString("password=" + optionValue(conn.Password) + "\n")
	b.WriteString("host=" + optionValue(conn.Host) + "\n")
	b.WriteString("port=" + strconv.Itoa(conn.Port) + "\n")
	return b.Bytes()
}

// writeDefaultsFile creates a 0600 option file holding the connection
// credentials and returns its path.
func writeDefaultsFile(dir string, conn config.DatabaseConfig) (string, error) {
	f, err := os.CreateTemp(dir, "sqlbackup-*.cnf")
	if err != nil {
		return "", fmt.Errorf("create credentials file: %w", err)
	}
	if err := f.Chmod(0o600); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("chmod credentials file: %w", err)
	}
	if _, err := f.Write(defaultsFileContent(conn)); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write credentials file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close credentials file: %w", err)
	}
	return f.Name(), nil
}

// Dump starts mysqldump for conn and returns its stdout.
func (d MySQLDumper) Dump(ctx context.Context, conn config.DatabaseConfig) (io.ReadCloser, error) {
	credFile, err := writeDefaultsFile(d.TempDir, conn)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, d.binary(), dumpArgs(credFile, conn)...)

	s := &dumpStream{
		cmd:      cmd,
		database: conn.Name,
		credFile: credFile,
		log:      d.logger(),
	}
	cmd.Stderr = &s.stderr

	// StdoutPipe returns a reader for the dump stream; call Start before reading.
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = os.Remove(credFile)
		return nil, fmt.Errorf("failed to get %s stdout: %w", d.binary(), err)
	}
	s.stdout = stdout

	if err := cmd.Start(); err != nil {
		_ = os.Remove(credFile)
		return nil, &DumpError{Database: conn.Name, Err: fmt.Errorf("start %s: %w", d.binary(), err)}
	}

	s.log.Debug("dump started",
		zap.String("binary", d.binary()),
		zap.String("database", conn.Name),
		zap.Int("pid", cmd.Process.Pid),
	)
	return s, nil
}

type dumpStream struct {
	cmd      *exec.Cmd
	stdout   io.ReadCloser
	stderr   bytes.Buffer
	database string
	credFile string
	log      *zap.Logger

	once     sync.Once
	closeErr error
}

func (s *dumpStream) Read(p []byte) (int, error) { return s.stdout.Read(p) }

// Close waits for the process. The exit status alone decides success; stderr
// is attached to the error or, on success, logged as a warning.
func (s *dumpStream) Close() error {
	s.once.Do(func() {
		// unblocks a writer stuck on a full pipe if the reader gave up early
		_ = s.stdout.Close()
		waitErr := s.cmd.Wait()
		if err := os.Remove(s.credFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("failed to remove credentials file", zap.String("path", s.credFile), zap.Error(err))
		}

		stderr := strings.TrimSpace(s.stderr.String())
		if waitErr != nil {
			s.closeErr = &DumpError{Database: s.database, Stderr: stderr, Err: waitErr}
			return
		}
		if stderr != "" {
			s.log.Warn("dump reported diagnostics", zap.String("database", s.database), zap.String("stderr", stderr))
		}
	})
	return s.closeErr
}
