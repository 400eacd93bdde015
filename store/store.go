package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/reddit-banbot/models"
)

const (
	ThreadsFile = "submissions.json"
	UsersFile   = "users.json"
	ReportFile  = "report.json"
)

// OrderedSet is a deduplicated list that keeps insertion order
type OrderedSet struct {
	items []string
	index map[string]struct{}
}

// NewOrderedSet creates a set holding items, dropping duplicates
func NewOrderedSet(items ...string) *OrderedSet {
	s := &OrderedSet{index: make(map[string]struct{}, len(items))}
	for _, item := range items {
		s.Add(item)
	}
	return s
}

// Add appends item unless it is already present. It reports whether item was added.
func (s *OrderedSet) Add(item string) bool {
	if _, ok := s.index[item]; ok {
		return false
	}
	s.index[item] = struct{}{}
	s.items = append(s.items, item)
	return true
}

// Has reports whether item is in the set
func (s *OrderedSet) Has(item string) bool {
	_, ok := s.index[item]
	return ok
}

// Len returns the number of items
func (s *OrderedSet) Len() int {
	return len(s.items)
}

// Items returns a copy of the items in insertion order
func (s *OrderedSet) Items() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

// ExclusionStore holds the threads, users and reports already handled,
// backed by three JSON files that are rewritten on every flush.
// It is not safe for concurrent use.
type ExclusionStore struct {
	dir     string
	persist bool
	log     *logrus.Logger

	threads     *OrderedSet
	users       *OrderedSet
	reports     []models.UserReport
	reportIndex map[string]struct{}
}

// Open loads the exclusion store from dir. When persist is false any
// existing files are deleted and the store starts empty. defaultUsers
// are always excluded from the user set.
func Open(dir string, persist bool, defaultUsers []string, log *logrus.Logger) (*ExclusionStore, error) {
	s := &ExclusionStore{
		dir:         dir,
		persist:     persist,
		log:         log,
		threads:     NewOrderedSet(),
		users:       NewOrderedSet(),
		reportIndex: make(map[string]struct{}),
	}

	if !persist {
		for _, name := range []string{ThreadsFile, UsersFile, ReportFile} {
			if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to delete %s: %w", name, err)
			}
		}
		for _, u := range defaultUsers {
			s.users.Add(u)
		}
		return s, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	var threads []string
	if _, err := s.readJSON(ThreadsFile, &threads); err != nil {
		return nil, err
	}
	s.threads = NewOrderedSet(threads...)

	var users []string
	found, err := s.readJSON(UsersFile, &users)
	if err != nil {
		return nil, err
	}
	s.users = NewOrderedSet(users...)
	for _, u := range defaultUsers {
		s.users.Add(u)
	}
	if !found {
		log.WithField("default_users", defaultUsers).Debug("No saved users, seeding defaults")
	}

	var reports []models.UserReport
	if _, err := s.readJSON(ReportFile, &reports); err != nil {
		return nil, err
	}
	for _, r := range reports {
		s.AddReport(r)
	}

	log.WithFields(logrus.Fields{
		"dir":     dir,
		"threads": s.threads.Len(),
		"users":   s.users.Len(),
		"reports": len(s.reports),
	}).Info("Loaded exclusion store")

	return s, nil
}

func (s *ExclusionStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

// readJSON decodes a store file into out. A missing or empty file is not an error.
func (s *ExclusionStore) readJSON(name string, out any) (bool, error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return true, nil
}

// writeJSON replaces a store file with the indented JSON encoding of v
func (s *ExclusionStore) writeJSON(name string, v any) error {
	if !s.persist {
		return nil
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.path(name)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}

	s.log.WithField("file", s.path(name)).Debug("Flushed exclusion store file")
	return nil
}

// HasThread reports whether the thread was already processed
func (s *ExclusionStore) HasThread(id string) bool {
	return s.threads.Has(id)
}

// AddThread marks a thread as processed
func (s *ExclusionStore) AddThread(id string) bool {
	return s.threads.Add(id)
}

// FlushThreads writes the processed thread ids
func (s *ExclusionStore) FlushThreads() error {
	return s.writeJSON(ThreadsFile, s.threads.Items())
}

// HasUser reports whether the account was already processed
func (s *ExclusionStore) HasUser(name string) bool {
	return s.users.Has(name)
}

// AddUser marks an account as processed
func (s *ExclusionStore) AddUser(name string) bool {
	return s.users.Add(name)
}

// FlushUsers writes the processed account names
func (s *ExclusionStore) FlushUsers() error {
	return s.writeJSON(UsersFile, s.users.Items())
}

// HasReport reports whether a report for the account exists
func (s *ExclusionStore) HasReport(user string) bool {
	_, ok := s.reportIndex[user]
	return ok
}

// AddReport appends a report unless the account already has one; the first report wins
func (s *ExclusionStore) AddReport(report models.UserReport) bool {
	if s.HasReport(report.User) {
		return false
	}
	s.reportIndex[report.User] = struct{}{}
	s.reports = append(s.reports, report)
	return true
}

// Reports returns a copy of every stored report
func (s *ExclusionStore) Reports() []models.UserReport {
	out := make([]models.UserReport, len(s.reports))
	copy(out, s.reports)
	return out
}

// SortReports orders the stored reports by descending total bad karma
func (s *ExclusionStore) SortReports() {
	SortReports(s.reports)
}

// FlushReports writes every stored report
func (s *ExclusionStore) FlushReports() error {
	reports := s.reports
	if reports == nil {
		reports = []models.UserReport{}
	}
	return s.writeJSON(ReportFile, reports)
}

// SortReports orders reports by descending total bad karma, keeping the
// relative order of ties
func SortReports(reports []models.UserReport) {
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].TotalBadKarma > reports[j].TotalBadKarma
	})
}
