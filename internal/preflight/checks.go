package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"avatarforge/internal/config"
	"avatarforge/internal/database"
	"avatarforge/internal/deps"
	"avatarforge/internal/joblock"
	"avatarforge/internal/logging"
)

const databaseCheckTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok")
}

// CheckDirectoryReadable verifies that the directory exists and can be listed.
func CheckDirectoryReadable(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.X_OK, "readable")
}

func checkDirectory(name, path string, mode uint32, okDetail string) Result {
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, okDetail)}
}

// CheckSystemDeps evaluates the speech and video toolchain for the given
// config. Both serve and doctor use this to avoid duplicating the list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	statuses := deps.CheckBinaries([]deps.Requirement{
		{
			Name:        "piper",
			Command:     cfg.Speech.Binary,
			Description: "Required for speech synthesis",
		},
		{
			Name:        "SadTalker python",
			Command:     cfg.Video.Python,
			Description: "Required for video synthesis",
		},
	})

	files := []deps.FileRequirement{
		{Name: "Voice model (male)", Path: cfg.Speech.VoiceMale, Description: "Used for gender m"},
		{Name: "Voice model (female)", Path: cfg.Speech.VoiceFemale, Description: "Used for gender f"},
	}
	if def := cfg.Speech.VoiceDefault; def != cfg.Speech.VoiceMale && def != cfg.Speech.VoiceFemale {
		files = append(files, deps.FileRequirement{Name: "Voice model (default)", Path: def, Description: "Used when gender is unset"})
	}
	if cfg.Video.Enhancer != "" {
		files = append(files, deps.FileRequirement{
			Name:        "Enhancer weights",
			Path:        cfg.Video.EnhancerWeights,
			Description: "Enhancement pass is skipped without it",
			Optional:    true,
		})
	}
	return append(statuses, deps.CheckFiles(files)...)
}

// CheckDatabase opens the configured database and pings it.
func CheckDatabase(ctx context.Context, cfg *config.Config) Result {
	ctx, cancel := context.WithTimeout(ctx, databaseCheckTimeout)
	defer cancel()

	if cfg.UsesPostgres() {
		const name = "Database (postgres)"
		pool, err := database.OpenPostgres(ctx, database.PostgresConfig{
			DSN:         cfg.Database.DSN,
			MaxConns:    2,
			DialTimeout: cfg.DialTimeout(),
		}, logging.NewNop())
		if err != nil {
			return Result{Name: name, Detail: summarizeDBError(err)}
		}
		defer pool.Close()
		if err := database.HealthCheck(ctx, pool, databaseCheckTimeout); err != nil {
			return Result{Name: name, Detail: summarizeDBError(err)}
		}
		return Result{Name: name, Passed: true, Detail: "reachable"}
	}

	const name = "Database (sqlite)"
	db, err := database.OpenSQLite(cfg.Database.SQLitePath)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return Result{Name: name, Detail: summarizeDBError(err)}
	}
	return Result{Name: name, Passed: true, Detail: cfg.Database.SQLitePath}
}

// CheckJobLock reports whether a render job currently holds the lock. A
// held lock is normal while a job runs, so the check is optional.
func CheckJobLock(ctx context.Context, cfg *config.Config) Result {
	ctx, cancel := context.WithTimeout(ctx, databaseCheckTimeout)
	defer cancel()

	result := Result{Name: "Job lock", Optional: true}
	var locker joblock.Locker
	if cfg.UsesPostgres() {
		pool, err := database.OpenPostgres(ctx, database.PostgresConfig{
			DSN:         cfg.Database.DSN,
			MaxConns:    2,
			DialTimeout: cfg.DialTimeout(),
		}, logging.NewNop())
		if err != nil {
			result.Detail = summarizeDBError(err)
			return result
		}
		defer pool.Close()
		locker = joblock.NewPgLocker(pool, cfg.Database.AdvisoryLockKey)
	} else {
		fileLocker, err := joblock.NewFileLocker(cfg.LockFilePath())
		if err != nil {
			result.Detail = err.Error()
			return result
		}
		locker = fileLocker
	}

	free, err := joblock.IsFree(ctx, locker)
	switch {
	case err != nil:
		result.Detail = err.Error()
	case free:
		result.Passed = true
		result.Detail = "free"
	default:
		result.Detail = "held by a running render job"
	}
	return result
}

func summarizeDBError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "connection timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "connection timed out (database unreachable)"
	}
	return err.Error()
}
