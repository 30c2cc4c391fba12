package discord

import (
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestStateThenREST_PrefersUsableCacheEntry(t *testing.T) {
	restCalls := 0
	got := stateThenREST(
		func() (*discordgo.Guild, error) { return &discordgo.Guild{Name: "cached"}, nil },
		func() (*discordgo.Guild, error) { restCalls++; return &discordgo.Guild{Name: "rest"}, nil },
		func(g *discordgo.Guild) bool { return g.Name != "" },
	)
	if got == nil || got.Name != "cached" || restCalls != 0 {
		t.Fatalf("expected cached guild without REST call, got %+v (rest calls %d)", got, restCalls)
	}
}

func TestStateThenREST_FallsBackWhenCacheUnusable(t *testing.T) {
	got := stateThenREST(
		func() (*discordgo.Guild, error) { return &discordgo.Guild{}, nil },
		func() (*discordgo.Guild, error) { return &discordgo.Guild{Name: "rest"}, nil },
		func(g *discordgo.Guild) bool { return g.Name != "" },
	)
	if got == nil || got.Name != "rest" {
		t.Fatalf("expected REST guild, got %+v", got)
	}

	got = stateThenREST(nil,
		func() (*discordgo.Guild, error) { return nil, errors.New("404") },
		func(g *discordgo.Guild) bool { return true },
	)
	if got != nil {
		t.Fatalf("expected nil when neither source resolves, got %+v", got)
	}
}

func TestLookupParticipant_PrefersNickname(t *testing.T) {
	s := newTestSession(t, func(req *http.Request) (*http.Response, error) {
		t.Fatalf("unexpected REST call: %s %s", req.Method, req.URL.String())
		return nil, nil
	})
	if err := s.State.GuildAdd(&discordgo.Guild{ID: "guild-1"}); err != nil {
		t.Fatalf("failed to add guild: %v", err)
	}
	if err := s.State.MemberAdd(&discordgo.Member{
		GuildID: "guild-1",
		Nick:    "Alice (interviewer)",
		User:    &discordgo.User{ID: "user-1", Username: "alice"},
	}); err != nil {
		t.Fatalf("failed to add member: %v", err)
	}

	c := &Client{session: s}
	p := c.lookupParticipant("guild-1", "user-1")
	if p.DisplayName != "Alice (interviewer)" || p.IsBot {
		t.Fatalf("unexpected participant: %+v", p)
	}
}

func TestUniqueIDs(t *testing.T) {
	got := uniqueIDs([]string{" user-1 ", "", "user-2", "user-1"})
	if len(got) != 2 || got[0] != "user-1" || got[1] != "user-2" {
		t.Fatalf("unexpected ids: %v", got)
	}
}
