package git

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cli/go-gh/v2/pkg/repository"
)

// ErrNoRepository is returned when no git directory or usable remote is found
var ErrNoRepository = errors.New("no git repository with a GitHub remote")

// Detect finds the repository of the working copy containing dir by reading its
// git config, without running git. The "origin" remote wins over other remotes.
func Detect(dir string) (repository.Repository, error) {
	gitDir, err := findGitDir(dir)
	if err != nil {
		return repository.Repository{}, err
	}

	remotes, err := readRemotes(filepath.Join(gitDir, "config"))
	if err != nil {
		return repository.Repository{}, err
	}
	if url, ok := remotes["origin"]; ok {
		return ParseRemoteURL(url)
	}
	for _, url := range remotes {
		if repo, err := ParseRemoteURL(url); err == nil {
			return repo, nil
		}
	}
	return repository.Repository{}, fmt.Errorf("%w: no remotes in %s", ErrNoRepository, gitDir)
}

// findGitDir walks up from dir to the nearest .git directory.
// A .git file pointing elsewhere (worktrees, submodules) is followed.
func findGitDir(dir string) (string, error) {
	current, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(current, ".git")
		if info, err := os.Stat(candidate); err == nil {
			if info.IsDir() {
				return candidate, nil
			}
			return followGitFile(candidate)
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("%w: .git not found above %s", ErrNoRepository, dir)
		}
		current = parent
	}
}

func followGitFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	target, ok := strings.CutPrefix(strings.TrimSpace(string(data)), "gitdir: ")
	if !ok {
		return "", fmt.Errorf("%w: unrecognized %s", ErrNoRepository, path)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(path), target)
	}
	// worktrees keep their config in the common dir
	if common, err := os.ReadFile(filepath.Join(target, "commondir")); err == nil {
		c := strings.TrimSpace(string(common))
		if !filepath.IsAbs(c) {
			c = filepath.Join(target, c)
		}
		return filepath.Clean(c), nil
	}
	return target, nil
}

// readRemotes returns remote name to url from a git config file
func readRemotes(configPath string) (map[string]string, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open git config: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	remotes := make(map[string]string)
	section := ""
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			section = ""
			if name, ok := strings.CutPrefix(line, "[remote \""); ok {
				section = strings.TrimSuffix(name, "\"]")
			}
			continue
		}

		if section == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if ok && strings.TrimSpace(key) == "url" {
			if _, seen := remotes[section]; !seen {
				remotes[section] = strings.TrimSpace(value)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading git config: %w", err)
	}
	return remotes, nil
}

// ParseRemoteURL parses https, ssh and scp-style remote URLs on any host
func ParseRemoteURL(url string) (repository.Repository, error) {
	rest := strings.TrimSuffix(strings.TrimSuffix(url, "/"), ".git")

	var host, path string
	switch {
	case strings.Contains(rest, "://"):
		_, after, _ := strings.Cut(rest, "://")
		host, path, _ = strings.Cut(after, "/")
		if _, h, ok := strings.Cut(host, "@"); ok {
			host = h
		}
		if h, _, ok := strings.Cut(host, ":"); ok {
			host = h
		}
	case strings.Contains(rest, ":"):
		host, path, _ = strings.Cut(rest, ":")
		if _, h, ok := strings.Cut(host, "@"); ok {
			host = h
		}
	default:
		return repository.Repository{}, fmt.Errorf("unsupported remote URL format: %s", url)
	}

	parts := strings.Split(path, "/")
	if host == "" || len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return repository.Repository{}, fmt.Errorf("unsupported remote URL format: %s", url)
	}
	if strings.EqualFold(host, "ssh.github.com") {
		host = "github.com"
	}
	return repository.Repository{Host: host, Owner: parts[0], Name: parts[1]}, nil
}
