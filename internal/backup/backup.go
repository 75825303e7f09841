package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"filippo.io/age"
	"github.com/google/uuid"

	"github.com/mealpedant/api/internal/apperror"
)

// retention is how long archives survive the sweep.
const retention = 6 * 24 * time.Hour

// Config locates every input of a backup run plus the pg_dump connection.
type Config struct {
	BackupDir string
	TempDir   string
	StaticDir string
	RedisFile string
	LogFile   string

	Passphrase string

	PgHost     string
	PgPort     int
	PgUser     string
	PgPass     string
	PgDatabase string
}

// Archive is one stored backup, for the admin listing.
type Archive struct {
	Name  string `json:"file_name"`
	Bytes int64  `json:"file_size"`
}

// Runner executes backup runs and the retention sweep.
type Runner struct {
	cfg Config
	log *slog.Logger
}

func NewRunner(cfg Config, log *slog.Logger) *Runner {
	return &Runner{cfg: cfg, log: log}
}

// Run produces one encrypted archive and returns its filename. Parts are
// staged in a unique temp directory that is removed on the way out,
// success or not.
func (r *Runner) Run(ctx context.Context, kind Kind) (string, error) {
	started := time.Now()

	tmp := filepath.Join(r.cfg.TempDir, uuid.NewString())
	if err := os.MkdirAll(tmp, 0o700); err != nil {
		return "", apperror.Io(err)
	}
	defer os.RemoveAll(tmp)

	if kind == KindFull {
		if err := tarDir(r.cfg.StaticDir, filepath.Join(tmp, "static.tar")); err != nil {
			return "", apperror.Io(err)
		}
	}
	if err := tarGzFile(r.cfg.RedisFile, filepath.Join(tmp, "redis.tar.gz")); err != nil {
		return "", apperror.Io(err)
	}
	if err := tarGzFile(r.cfg.LogFile, filepath.Join(tmp, "logs.tar.gz")); err != nil {
		return "", apperror.Io(err)
	}
	if err := r.dumpPostgres(ctx, tmp); err != nil {
		return "", err
	}

	combined := filepath.Join(tmp, "combined.tar")
	if err := combineParts(tmp, combined); err != nil {
		return "", apperror.Io(err)
	}

	name, err := GenerateName(kind, started)
	if err != nil {
		return "", err
	}
	if err := r.encrypt(combined, filepath.Join(r.cfg.BackupDir, name.String())); err != nil {
		return "", err
	}

	r.sweep()

	r.log.Info("backup_complete",
		"kind", string(kind),
		"archive", name.String(),
		"duration", time.Since(started),
	)
	return name.String(), nil
}

// dumpPostgres shells out to pg_dump in tar format and gzips the result.
func (r *Runner) dumpPostgres(ctx context.Context, tmp string) error {
	out := filepath.Join(tmp, "pg_dump.tar")
	cmd := exec.CommandContext(ctx, "pg_dump",
		"-F", "t",
		"-h", r.cfg.PgHost,
		"-p", fmt.Sprint(r.cfg.PgPort),
		"-U", r.cfg.PgUser,
		"-f", out,
		r.cfg.PgDatabase,
	)
	cmd.Env = append(os.Environ(), "PGPASSWORD="+r.cfg.PgPass)
	if raw, err := cmd.CombinedOutput(); err != nil {
		return apperror.Io(fmt.Errorf("pg_dump: %w: %s", err, raw))
	}
	if err := gzipFile(out); err != nil {
		return apperror.Io(err)
	}
	return os.Remove(out)
}

// encrypt writes the age-encrypted archive using a passphrase recipient.
func (r *Runner) encrypt(src, dst string) error {
	recipient, err := age.NewScryptRecipient(r.cfg.Passphrase)
	if err != nil {
		return apperror.Internal(err)
	}

	in, err := os.Open(src)
	if err != nil {
		return apperror.Io(err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return apperror.Io(err)
	}

	w, err := age.Encrypt(out, recipient)
	if err != nil {
		_ = out.Close()
		return apperror.Internal(err)
	}
	if _, err := io.Copy(w, in); err != nil {
		_ = out.Close()
		return apperror.Io(err)
	}
	if err := w.Close(); err != nil {
		_ = out.Close()
		return apperror.Io(err)
	}
	return out.Close()
}

// sweep removes encrypted archives older than the retention window.
// Failures are logged, never fatal: a sweep miss costs disk, not data.
func (r *Runner) sweep() {
	entries, err := os.ReadDir(r.cfg.BackupDir)
	if err != nil {
		r.log.Error("backup_sweep_failed", "error", err)
		return
	}
	cutoff := time.Now().Add(-retention)
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".age") && !strings.HasSuffix(name, ".gpg") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(r.cfg.BackupDir, name)); err != nil {
			r.log.Error("backup_sweep_remove_failed", "archive", name, "error", err)
			continue
		}
		r.log.Info("backup_swept", "archive", name)
	}
}

// List returns every valid archive in the backup directory.
func (r *Runner) List() ([]Archive, error) {
	entries, err := os.ReadDir(r.cfg.BackupDir)
	if err != nil {
		return nil, apperror.Io(err)
	}
	archives := make([]Archive, 0, len(entries))
	for _, entry := range entries {
		if _, err := ParseName(entry.Name()); err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		archives = append(archives, Archive{Name: entry.Name(), Bytes: info.Size()})
	}
	return archives, nil
}

// Delete removes one archive by validated name.
func (r *Runner) Delete(name string) error {
	if _, err := ParseName(name); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(r.cfg.BackupDir, name)); err != nil {
		if os.IsNotExist(err) {
			return apperror.InvalidValue("unknown backup")
		}
		return apperror.Io(err)
	}
	return nil
}

// tarDir archives a directory tree, paths relative to its root.
func tarDir(dir, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	tw := tar.NewWriter(out)
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		return appendFile(tw, path, rel)
	})
	if err != nil {
		return err
	}
	return tw.Close()
}

// tarGzFile archives a single file into a gzipped tarball.
func tarGzFile(src, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)
	if err := appendFile(tw, src, filepath.Base(src)); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

// combineParts tars every staged part except the output itself.
func combineParts(tmp, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	entries, err := os.ReadDir(tmp)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(out)
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == filepath.Base(dst) {
			continue
		}
		if err := appendFile(tw, filepath.Join(tmp, entry.Name()), entry.Name()); err != nil {
			return err
		}
	}
	return tw.Close()
}

func appendFile(tw *tar.Writer, path, name string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

// gzipFile compresses path into path.gz and leaves the original in place
// for the caller to remove.
func gzipFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		return err
	}
	return gz.Close()
}
