// Package permission decides whether the process may use location sources.
// Decisions are pre-granted in configuration or asked for once on the
// terminal and remembered in a consent file.
package permission

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/benmeehan/partner-tracker/internal/utils"
	"github.com/benmeehan/partner-tracker/pkg/file"
	"github.com/rs/zerolog"
)

// Permission names a runtime permission.
type Permission string

const (
	FineLocation   Permission = "fine_location"
	CoarseLocation Permission = "coarse_location"
)

// Checker reports and requests permissions.
type Checker interface {
	Check(p Permission) bool
	Request(ctx context.Context, p Permission) (bool, error)
}

// consent is the on-disk record of answered requests.
type consent struct {
	Granted []Permission `yaml:"granted"`
	Denied  []Permission `yaml:"denied"`
}

// Gate is the Checker backed by configuration, a consent file and an optional
// terminal prompt.
type Gate struct {
	fileClient  file.FileOperations
	consentFile string
	preGranted  map[Permission]struct{}
	interactive bool
	in          io.Reader
	out         io.Writer
	logger      zerolog.Logger

	mu      sync.Mutex
	loaded  bool
	consent consent
}

// NewGate creates a Gate. Permissions in granted never need a prompt. An empty
// consentFile keeps answers in memory only.
func NewGate(fileClient file.FileOperations, consentFile string, granted []string, interactive bool,
	in io.Reader, out io.Writer, logger zerolog.Logger) *Gate {
	pre := make([]Permission, 0, len(granted))
	for _, g := range granted {
		pre = append(pre, Permission(g))
	}
	return &Gate{
		fileClient:  fileClient,
		consentFile: consentFile,
		preGranted:  utils.SliceToSet(pre),
		interactive: interactive,
		in:          in,
		out:         out,
		logger:      logger,
	}
}

// Check reports whether p has been granted.
func (g *Gate) Check(p Permission) bool {
	if _, ok := g.preGranted[p]; ok {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.load()
	return slices.Contains(g.consent.Granted, p)
}

// Request asks for p and returns the answer. A previously remembered answer is
// returned without asking again. Without a terminal the request is denied.
func (g *Gate) Request(ctx context.Context, p Permission) (bool, error) {
	if g.Check(p) {
		return true, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if slices.Contains(g.consent.Denied, p) {
		g.logger.Debug().Str("permission", string(p)).Msg("Permission denied earlier")
		return false, nil
	}
	if !g.interactive || g.in == nil {
		g.logger.Warn().Str("permission", string(p)).Msg("Permission missing and prompting is disabled")
		return false, nil
	}

	granted, err := g.prompt(ctx, p)
	if err != nil {
		return false, err
	}
	if granted {
		g.consent.Granted = append(g.consent.Granted, p)
	} else {
		g.consent.Denied = append(g.consent.Denied, p)
	}
	if err := g.save(); err != nil {
		g.logger.Error().Err(err).Str("file", g.consentFile).Msg("Failed to persist permission decision")
	}

	g.logger.Info().Str("permission", string(p)).Bool("granted", granted).Msg("Permission decision recorded")
	return granted, nil
}

func (g *Gate) prompt(ctx context.Context, p Permission) (bool, error) {
	if g.out != nil {
		fmt.Fprintf(g.out, "Allow %s? [y/N] ", p)
	}

	answer := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(g.in).ReadString('\n')
		answer <- line
	}()

	select {
	case line := <-answer:
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	case <-ctx.Done():
		return false, fmt.Errorf("permission prompt for %s: %w", p, ctx.Err())
	}
}

// load reads the consent file once. A missing or unreadable file counts as no
// answers given.
func (g *Gate) load() {
	if g.loaded {
		return
	}
	g.loaded = true
	if g.consentFile == "" {
		return
	}

	exists, err := g.fileClient.IsFileExists(g.consentFile)
	if err != nil || !exists {
		return
	}
	if err := g.fileClient.ReadYamlFile(g.consentFile, &g.consent); err != nil {
		g.logger.Warn().Err(err).Str("file", g.consentFile).Msg("Ignoring unreadable consent file")
		g.consent = consent{}
	}
}

func (g *Gate) save() error {
	if g.consentFile == "" {
		return nil
	}
	return g.fileClient.WriteYamlFile(g.consentFile, g.consent)
}
