// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/warden/internal/auth"
	"github.com/holomush/warden/internal/cache"
)

// SessionInfo is one live session as listed by the sessions command.
// Tokens are never printed.
type SessionInfo struct {
	Username string `json:"username"`
	UserID   int64  `json:"userId"`
}

type sessionsConfig struct {
	match      string
	jsonOutput bool
}

type sessionStoreFactory func(ctx context.Context, cfg *Config) (cache.Store, func(), error)

// openSessionStore connects to the shared redis cache. The memory backend
// lives inside a serve process and cannot be inspected from outside.
func openSessionStore(ctx context.Context, cfg *Config) (cache.Store, func(), error) {
	if cfg.Cache.Backend != backendRedis {
		return nil, nil, invalid("cache.backend", "sessions can only be listed from the redis backend")
	}
	client, err := cache.Dial(ctx, cache.RedisOptions{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PingAttempts: 1,
	})
	if err != nil {
		return nil, nil, err
	}
	return cache.NewRedis(client), func() { _ = client.Close() }, nil
}

// NewSessionsCmd creates the sessions subcommand.
func NewSessionsCmd() *cobra.Command {
	return newSessionsCmd(openSessionStore)
}

func newSessionsCmd(factory sessionStoreFactory) *cobra.Command {
	cfg := &sessionsConfig{}

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List live sessions",
		Long: `List the live sessions held in the shared cache. --match filters
usernames with a glob such as "ali*" or "{alice,bob}".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := configFromCommand(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			store, closeStore, err := factory(ctx, conf)
			if err != nil {
				return err
			}
			defer closeStore()

			sessions, err := listSessions(ctx, store, cfg.match)
			if err != nil {
				return err
			}
			if cfg.jsonOutput {
				data, err := json.MarshalIndent(sessions, "", "  ")
				if err != nil {
					return oops.Code("SESSIONS_ENCODE_FAILED").Wrap(err)
				}
				cmd.Println(string(data))
				return nil
			}
			cmd.Print(formatSessionsTable(sessions))
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.match, "match", "", "glob filter on usernames")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output sessions as JSON")
	cmd.Flags().String("redis-addr", "localhost:6379", "redis address")

	return cmd
}

// listSessions reads every session key, skipping entries that expire or
// fail to decode between the scan and the read.
func listSessions(ctx context.Context, store cache.Store, pattern string) ([]SessionInfo, error) {
	var matcher glob.Glob
	if pattern != "" {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, oops.Code("INVALID_PATTERN").With("pattern", pattern).Wrap(err)
		}
		matcher = g
	}

	keys, err := store.Keys(ctx, auth.SessionKeyPrefix)
	if err != nil {
		return nil, err
	}

	sessions := make([]SessionInfo, 0, len(keys))
	for _, key := range keys {
		username, ok := auth.UsernameFromKey(key)
		if !ok || (matcher != nil && !matcher.Match(username)) {
			continue
		}
		value, found, err := store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		state, err := auth.DecodeSession(value)
		if err != nil {
			continue
		}
		sessions = append(sessions, SessionInfo{Username: username, UserID: state.UserID})
	}

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Username < sessions[j].Username })
	return sessions, nil
}

func formatSessionsTable(sessions []SessionInfo) string {
	var buf []byte
	w := tabwriter.NewWriter((*byteWriter)(&buf), 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "USERNAME\tUSER ID")
	_, _ = fmt.Fprintln(w, "--------\t-------")
	for _, s := range sessions {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", s.Username, s.UserID)
	}
	_, _ = fmt.Fprintf(w, "\n%d live session(s)\n", len(sessions))

	_ = w.Flush()
	return string(buf)
}
