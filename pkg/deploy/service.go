// Package deploy wires profiles, sessions, and remote operations into the
// commands a host exposes: browse, fetch, and upload.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/quocson95/ideaftp/pkg/metrics"
	"github.com/quocson95/ideaftp/pkg/pathmap"
	"github.com/quocson95/ideaftp/pkg/profile"
	"github.com/quocson95/ideaftp/pkg/remote"
	"github.com/quocson95/ideaftp/pkg/session"
	"github.com/quocson95/ideaftp/pkg/staging"
	"github.com/quocson95/ideaftp/pkg/transport"
)

var (
	// ErrNoMatch is returned when no profile maps the local path
	ErrNoMatch = errors.New("no profile maps this path")
	// ErrAmbiguous is returned when several profiles match and there is no picker
	ErrAmbiguous = errors.New("several profiles map this path")
	// ErrCanceled is returned by a Picker when the user backs out
	ErrCanceled = errors.New("canceled")
	// ErrUnknownProfile is returned when a profile name is not configured
	ErrUnknownProfile = errors.New("unknown profile")
)

// ProfileStore loads and replaces the whole profile list
type ProfileStore interface {
	LoadProfiles() ([]profile.Profile, error)
	SaveProfiles(profiles []profile.Profile) error
}

// Picker chooses one of several matching profiles
type Picker interface {
	Pick(ctx context.Context, matches []pathmap.Match) (pathmap.Match, error)
}

// Config tunes the service
type Config struct {
	OperationTimeout time.Duration // 0 means no deadline
	Concurrency      int
}

// Result describes a completed upload
type Result struct {
	Profile     string
	LocalPath   string
	RemotePath  string
	Bytes       int64
	DirsCreated int
}

// Progress reports how far a batch upload has come
type Progress struct {
	Files int   // files uploaded so far
	Total int   // files in the batch
	Bytes int64 // bytes uploaded so far
}

// Service runs deploy operations against the configured profiles
type Service struct {
	store    ProfileStore
	sessions *session.Manager
	picker   Picker
	stager   *staging.Stager
	log      *zap.Logger
	cfg      Config
}

// NewService creates a new service. picker and stager may be nil; without a
// picker ambiguous uploads fail, without a stager Open is unavailable.
func NewService(store ProfileStore, sessions *session.Manager, picker Picker, stager *staging.Stager, log *zap.Logger, cfg Config) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Service{
		store:    store,
		sessions: sessions,
		picker:   picker,
		stager:   stager,
		log:      log,
		cfg:      cfg,
	}
}

// NewOpenFunc returns the session.OpenFunc used in production: transport.Open
// with metrics recorded for every attempt.
func NewOpenFunc(opts transport.Options) session.OpenFunc {
	return func(ctx context.Context, p profile.Profile) (transport.Conn, error) {
		start := time.Now()
		conn, err := transport.Open(ctx, p, opts)
		metrics.RecordConnect(string(p.Protocol), time.Since(start), err == nil)
		return conn, err
	}
}

func (s *Service) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.OperationTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.OperationTimeout)
	}
	return context.WithCancel(ctx)
}

// Profiles returns the current profile list, read fresh from the store
func (s *Service) Profiles() ([]profile.Profile, error) {
	profiles, err := s.store.LoadProfiles()
	if err != nil {
		if errors.Is(err, profile.ErrCorrupted) {
			s.log.Warn("profiles file was reset", zap.Error(err))
			return profiles, nil
		}
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	return profiles, nil
}

func (s *Service) find(name string) (profile.Profile, error) {
	profiles, err := s.Profiles()
	if err != nil {
		return profile.Profile{}, err
	}
	p, ok := profile.Find(profiles, name)
	if !ok {
		return profile.Profile{}, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	return p, nil
}

// SaveProfile replaces the profile at index, or appends it when index is out
// of range. An open session of the replaced profile is closed so the next
// operation uses the new settings.
func (s *Service) SaveProfile(index int, p profile.Profile) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	profiles, err := s.Profiles()
	if err != nil {
		return err
	}

	next := make([]profile.Profile, len(profiles))
	copy(next, profiles)
	var replaced string
	if index >= 0 && index < len(next) {
		replaced = next[index].Name
		next[index] = p
	} else {
		next = append(next, p)
	}

	if err := s.store.SaveProfiles(next); err != nil {
		return fmt.Errorf("save profiles: %w", err)
	}
	if replaced != "" {
		s.sessions.Disconnect(replaced)
	}
	s.log.Info("profile saved", zap.String("profile", p.Name))
	return nil
}

// DeleteProfile removes the profile at index and closes its session
func (s *Service) DeleteProfile(index int) error {
	profiles, err := s.Profiles()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(profiles) {
		return fmt.Errorf("no profile at index %d", index)
	}

	name := profiles[index].Name
	next := make([]profile.Profile, 0, len(profiles)-1)
	next = append(next, profiles[:index]...)
	next = append(next, profiles[index+1:]...)
	if err := s.store.SaveProfiles(next); err != nil {
		return fmt.Errorf("save profiles: %w", err)
	}

	s.sessions.Disconnect(name)
	s.log.Info("profile deleted", zap.String("profile", name))
	return nil
}

// Connect opens a session that stays open until Disconnect
func (s *Service) Connect(ctx context.Context, name string) error {
	p, err := s.find(name)
	if err != nil {
		return err
	}
	_, err = s.sessions.Connect(ctx, p)
	return err
}

// Disconnect closes the session of a profile, if any
func (s *Service) Disconnect(name string) error {
	return s.sessions.Disconnect(name)
}

// Status reports whether a profile is connected
func (s *Service) Status(name string) session.Status {
	return s.sessions.Status(name)
}

// TestConnection checks that p can connect, without registering a session
func (s *Service) TestConnection(ctx context.Context, p profile.Profile) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	return s.sessions.Probe(ctx, p)
}

// withSession runs fn on the session of a profile. A connected session is
// reused; otherwise a temporary one is opened and closed afterwards. The
// session serializes each call made through it; fn uses Do to keep a
// multi-step operation together.
func (s *Service) withSession(ctx context.Context, p profile.Profile, fn func(ctx context.Context, sess *session.Session) error) error {
	sess, release, err := s.sessions.Acquire(ctx, p)
	if err != nil {
		return err
	}
	defer release()

	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	return fn(opCtx, sess)
}

func (s *Service) browseDir(p profile.Profile, dir string) string {
	if dir != "" {
		return dir
	}
	if p.RemoteRoot != "" {
		return p.RemoteRoot
	}
	return "/"
}

// Browse lists a remote directory. An empty dir means the profile's remote
// root, or "/" when it has none.
func (s *Service) Browse(ctx context.Context, name, dir string) ([]remote.Entry, error) {
	return s.browse(ctx, name, dir, remote.List)
}

// BrowseDirs lists only the subdirectories of a remote directory
func (s *Service) BrowseDirs(ctx context.Context, name, dir string) ([]remote.Entry, error) {
	return s.browse(ctx, name, dir, remote.ListDirs)
}

func (s *Service) browse(ctx context.Context, name, dir string,
	list func(context.Context, transport.Conn, string) ([]remote.Entry, error)) ([]remote.Entry, error) {
	p, err := s.find(name)
	if err != nil {
		return nil, err
	}

	var entries []remote.Entry
	err = s.withSession(ctx, p, func(ctx context.Context, sess *session.Session) error {
		var err error
		entries, err = list(ctx, sess, s.browseDir(p, dir))
		return err
	})
	metrics.RecordListing(err == nil)
	return entries, err
}

// Fetch downloads a remote file into memory
func (s *Service) Fetch(ctx context.Context, name, remotePath string) ([]byte, error) {
	p, err := s.find(name)
	if err != nil {
		return nil, err
	}

	var data []byte
	start := time.Now()
	err = s.withSession(ctx, p, func(ctx context.Context, sess *session.Session) error {
		var err error
		data, err = remote.Download(ctx, sess, remotePath)
		return err
	})
	metrics.RecordTransfer(string(remote.DirDownload), int64(len(data)), time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}
	s.log.Info("downloaded", zap.String("profile", name), zap.String("remote", remotePath), zap.Int("bytes", len(data)))
	return data, nil
}

// Open downloads a remote file into the staging directory and returns the
// local copy. Release it with CloseStaged.
func (s *Service) Open(ctx context.Context, name, remotePath string) (string, error) {
	if s.stager == nil {
		return "", errors.New("no staging directory configured")
	}
	data, err := s.Fetch(ctx, name, remotePath)
	if err != nil {
		return "", err
	}
	return s.stager.Stage(remotePath, data)
}

// CloseStaged removes a file created by Open
func (s *Service) CloseStaged(localPath string) error {
	if s.stager == nil {
		return nil
	}
	return s.stager.Remove(localPath)
}

// Resolve returns the profiles mapping localPath, longest local root first
func (s *Service) Resolve(localPath string) ([]pathmap.Match, error) {
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return nil, err
	}
	profiles, err := s.Profiles()
	if err != nil {
		return nil, err
	}
	return pathmap.Resolve(abs, profiles), nil
}

func (s *Service) choose(ctx context.Context, localPath string, matches []pathmap.Match) (pathmap.Match, error) {
	switch {
	case len(matches) == 0:
		return pathmap.Match{}, fmt.Errorf("%w: %s", ErrNoMatch, localPath)
	case len(matches) == 1:
		return matches[0], nil
	case s.picker == nil:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.Profile.Name
		}
		return pathmap.Match{}, fmt.Errorf("%w: %s (%s)", ErrAmbiguous, localPath, strings.Join(names, ", "))
	default:
		return s.picker.Pick(ctx, matches)
	}
}

// Upload sends a local file to the remote path its profile maps it to,
// creating missing remote directories first.
func (s *Service) Upload(ctx context.Context, localPath string) (Result, error) {
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return Result{}, err
	}
	matches, err := s.Resolve(abs)
	if err != nil {
		return Result{}, err
	}
	m, err := s.choose(ctx, abs, matches)
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = s.withSession(ctx, m.Profile, func(ctx context.Context, sess *session.Session) error {
		return sess.Do(func(conn transport.Conn) error {
			var err error
			res, err = s.uploadOne(ctx, conn, remote.Job{
				Profile:   m.Profile.Name,
				Source:    abs,
				Dest:      m.RemotePath,
				Direction: remote.DirUpload,
			})
			return err
		})
	})
	return res, err
}

// UploadTo sends a local file to an explicit remote path of a profile,
// bypassing path mapping. Missing remote directories are created.
func (s *Service) UploadTo(ctx context.Context, name, localPath, remotePath string) (Result, error) {
	if !path.IsAbs(remotePath) {
		return Result{}, fmt.Errorf("remote path %q must be absolute", remotePath)
	}
	p, err := s.find(name)
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = s.withSession(ctx, p, func(ctx context.Context, sess *session.Session) error {
		return sess.Do(func(conn transport.Conn) error {
			var err error
			res, err = s.uploadOne(ctx, conn, remote.Job{
				Profile:   p.Name,
				Source:    localPath,
				Dest:      path.Clean(remotePath),
				Direction: remote.DirUpload,
			})
			return err
		})
	})
	return res, err
}

func (s *Service) uploadOne(ctx context.Context, conn transport.Conn, job remote.Job) (Result, error) {
	res := Result{Profile: job.Profile, LocalPath: job.Source, RemotePath: job.Dest}
	start := time.Now()

	created, err := remote.Ensure(ctx, conn, remote.Parent(job.Dest))
	metrics.RecordDirsCreated(created)
	res.DirsCreated = created
	if err != nil {
		return res, err
	}

	res.Bytes, err = remote.Upload(ctx, conn, job.Source, job.Dest)
	metrics.RecordTransfer(string(remote.DirUpload), res.Bytes, time.Since(start), err == nil)
	if err != nil {
		return res, err
	}

	s.log.Info("uploaded",
		zap.String("profile", job.Profile),
		zap.String("local", job.Source),
		zap.String("remote", job.Dest),
		zap.Int64("bytes", res.Bytes),
		zap.Int("dirs_created", created),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

// UploadAll uploads every file below the given paths. Targets are resolved
// before anything is sent; when several profiles match, the picker is asked
// once per distinct set of candidates. The first failure stops the batch.
// onDone receives each result with the batch progress so far; calls are
// serialized but come from the upload goroutines.
func (s *Service) UploadAll(ctx context.Context, paths []string, onDone func(Result, Progress)) ([]Result, error) {
	var files []string
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		found, _, err := remote.ScanLocal(ctx, abs)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", p, err)
		}
		files = append(files, found...)
	}

	profiles, err := s.Profiles()
	if err != nil {
		return nil, err
	}

	chosen := make(map[string]string) // candidate set -> profile name
	targets := make(map[string]profile.Profile)
	var jobs []remote.Job
	for _, f := range files {
		matches := pathmap.Resolve(f, profiles)
		key := candidateKey(matches)

		var m pathmap.Match
		if name, ok := chosen[key]; ok && len(matches) > 1 {
			for _, c := range matches {
				if c.Profile.Name == name {
					m = c
				}
			}
		} else {
			m, err = s.choose(ctx, f, matches)
			if err != nil {
				return nil, err
			}
			chosen[key] = m.Profile.Name
		}

		targets[m.Profile.Name] = m.Profile
		jobs = append(jobs, remote.Job{Profile: m.Profile.Name, Source: f, Dest: m.RemotePath, Direction: remote.DirUpload})
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	sessions := make(map[string]*session.Session, len(targets))
	for name, p := range targets {
		sess, release, err := s.sessions.Acquire(ctx, p)
		if err != nil {
			return nil, err
		}
		defer release()
		sessions[name] = sess
	}

	results := make([]Result, len(jobs))
	index := make(map[string]int, len(jobs))
	for i, j := range jobs {
		index[j.Profile+"\x00"+j.Source] = i
	}

	queue := NewFileQueue(s.cfg.Concurrency)
	err = queue.ProcessJobs(ctx, jobs, func(ctx context.Context, job remote.Job) (int64, error) {
		opCtx, cancel := s.opContext(ctx)
		defer cancel()

		var res Result
		err := sessions[job.Profile].Do(func(conn transport.Conn) error {
			var err error
			res, err = s.uploadOne(opCtx, conn, job)
			return err
		})
		if err != nil {
			return 0, err
		}
		results[index[job.Profile+"\x00"+job.Source]] = res
		return res.Bytes, nil
	}, func(job remote.Job, files int, bytes int64) {
		s.log.Debug("upload progress", zap.Int("files", files), zap.Int("total", len(jobs)), zap.Int64("bytes", bytes))
		if onDone != nil {
			onDone(results[index[job.Profile+"\x00"+job.Source]], Progress{Files: files, Total: len(jobs), Bytes: bytes})
		}
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func candidateKey(matches []pathmap.Match) string {
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Profile.Name
	}
	sort.Strings(names)
	return strings.Join(names, "\x00")
}
