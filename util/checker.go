package util

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v63/github"
	"golang.org/x/mod/semver"

	"github.com/muvahhid/molayeri-sub002/config"
)

// UpdateInfo compares the running build with the latest published release.
type UpdateInfo struct {
	Available   bool
	Current     string
	Latest      string
	ReleaseURL  string
	Notes       string
	PublishedAt time.Time
}

// UpdateChecker looks up the latest stable release of the service.
type UpdateChecker struct {
	client *github.Client
	owner  string
	repo   string
}

// NewUpdateChecker builds a checker for cfg. A nil httpClient uses
// http.DefaultClient; cfg.APIURL points it at a GitHub Enterprise or test API.
func NewUpdateChecker(httpClient *http.Client, cfg config.UpdateConfig) (*UpdateChecker, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("update.owner and update.repo are required")
	}
	client := github.NewClient(httpClient)
	if cfg.APIURL != "" {
		base, err := url.Parse(strings.TrimSuffix(cfg.APIURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("update.api_url: %w", err)
		}
		client.BaseURL = base
	}
	return &UpdateChecker{client: client, owner: cfg.Owner, repo: cfg.Repo}, nil
}

// canonicalVersion adds the leading v semver wants and rejects anything else.
func canonicalVersion(v string) (string, error) {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return "", fmt.Errorf("%q is not a semantic version", v)
	}
	return v, nil
}

// Check compares current with the latest release.
func (c *UpdateChecker) Check(ctx context.Context, current string) (*UpdateInfo, error) {
	currentVersion, err := canonicalVersion(current)
	if err != nil {
		return nil, fmt.Errorf("running version: %w", err)
	}

	release, _, err := c.client.Repositories.GetLatestRelease(ctx, c.owner, c.repo)
	if err != nil {
		return nil, fmt.Errorf("fetching latest release of %s/%s: %w", c.owner, c.repo, err)
	}

	latest, err := canonicalVersion(release.GetTagName())
	if err != nil {
		return nil, fmt.Errorf("latest release tag: %w", err)
	}

	return &UpdateInfo{
		Available:   semver.Compare(latest, currentVersion) > 0,
		Current:     currentVersion,
		Latest:      latest,
		ReleaseURL:  release.GetHTMLURL(),
		Notes:       release.GetBody(),
		PublishedAt: release.GetPublishedAt().Time,
	}, nil
}
