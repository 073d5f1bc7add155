package view

import (
	"testing"

	"github.com/chatdesk/internal/model"
)

func member(userID, name, email string) model.ChatMember {
	return model.ChatMember{
		UserID: userID,
		User:   &model.UserPublic{ID: userID, Name: name, Email: email},
	}
}

func directChat(id string, a, b model.ChatMember) model.ChatDetail {
	return model.ChatDetail{
		Chat:    model.Chat{ID: id, IsGroup: false},
		Members: []model.ChatMember{a, b},
	}
}

func TestDisplayNameGroup(t *testing.T) {
	named := model.ChatDetail{
		Chat:    model.Chat{ID: "g1", IsGroup: true, Name: "Platform Team"},
		Members: []model.ChatMember{member("u1", "", ""), member("u2", "", "")},
	}
	if got := DisplayName(named, "u1"); got != "Platform Team" {
		t.Errorf("got %q", got)
	}

	unnamed := named
	unnamed.Chat.Name = ""
	unnamed.Members = append(unnamed.Members, member("u3", "", ""))
	if got := DisplayName(unnamed, "u1"); got != "Group (3)" {
		t.Errorf("got %q, want Group (3)", got)
	}
}

func TestDisplayNameDirectFallbacks(t *testing.T) {
	me := member("me", "Me", "me@example.com")

	withName := directChat("c1", me, member("u2", "Bob", "bob@example.com"))
	if got := DisplayName(withName, "me"); got != "Bob" {
		t.Errorf("got %q, want Bob", got)
	}

	emailOnly := directChat("c2", me, member("u3", "", "carol@example.com"))
	if got := DisplayName(emailOnly, "me"); got != "carol@example.com" {
		t.Errorf("got %q, want the email", got)
	}

	bare := directChat("c3", me, member("u4", "", ""))
	if got := DisplayName(bare, "me"); got != "Direct Message" {
		t.Errorf("got %q, want Direct Message", got)
	}

	// A named direct-chat row still shows the peer, not the stored name.
	named := directChat("c4", me, member("u5", "Dana", "dana@example.com"))
	named.Chat.Name = "Direct Message"
	if got := DisplayName(named, "me"); got != "Dana" {
		t.Errorf("got %q, want Dana; chat row names never apply to direct chats", got)
	}
}

func TestDedupeCollapsesDuplicateDirectChats(t *testing.T) {
	me := member("me", "Me", "")
	bob := member("bob", "Bob", "")
	details := []model.ChatDetail{
		directChat("c1", me, bob),
		directChat("c2", me, bob), // duplicate peer, different chat row
		{
			Chat:    model.Chat{ID: "g1", IsGroup: true, Name: "Team"},
			Members: []model.ChatMember{me, bob},
		},
	}

	out := Dedupe(details, "me")
	if len(out) != 2 {
		t.Fatalf("got %d entries, want 2", len(out))
	}
	if out[0].Chat.ID != "c1" {
		t.Errorf("first occurrence should win, got %s", out[0].Chat.ID)
	}
	if out[1].Chat.ID != "g1" {
		t.Errorf("group must survive, got %s", out[1].Chat.ID)
	}
}

func TestDedupeKeepsGroupsWithSamePeers(t *testing.T) {
	me := member("me", "", "")
	bob := member("bob", "", "")
	details := []model.ChatDetail{
		{Chat: model.Chat{ID: "g1", IsGroup: true}, Members: []model.ChatMember{me, bob}},
		{Chat: model.Chat{ID: "g2", IsGroup: true}, Members: []model.ChatMember{me, bob}},
	}
	if got := len(Dedupe(details, "me")); got != 2 {
		t.Errorf("got %d, want 2; groups only collapse by id", got)
	}
}

func TestDeriveTwoGroupsTwoDMs(t *testing.T) {
	me := member("me", "Me", "")
	p1 := member("p1", "Paula", "")
	p2 := member("p2", "Pete", "")
	details := []model.ChatDetail{
		{Chat: model.Chat{ID: "g1", IsGroup: true, Name: "Alpha"}, Members: []model.ChatMember{me, p1, p2}},
		{Chat: model.Chat{ID: "g2", IsGroup: true, Name: "Beta"}, Members: []model.ChatMember{me, p1}},
		directChat("d1", me, p1),
		directChat("d2", me, p2),
	}

	entries := Derive(details, nil, "me")
	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4", len(entries))
	}
	wantNames := []string{"Alpha", "Beta", "Paula", "Pete"}
	for i, w := range wantNames {
		if entries[i].DisplayName != w {
			t.Errorf("entry %d name = %q, want %q", i, entries[i].DisplayName, w)
		}
	}

	dms := 0
	for _, e := range entries {
		if (Filter{Kind: "direct"}).Matches(e) {
			dms++
			if e.Detail.Chat.ID != "d1" && e.Detail.Chat.ID != "d2" {
				t.Errorf("direct filter matched %s", e.Detail.Chat.ID)
			}
		}
	}
	if dms != 2 {
		t.Errorf("direct filter matched %d, want 2", dms)
	}
}

func TestSearchMatchesGroupMemberNames(t *testing.T) {
	e := Entry{
		Detail: model.ChatDetail{
			Chat:    model.Chat{ID: "g1", IsGroup: true, Name: "Ops"},
			Members: []model.ChatMember{member("u1", "Alice", ""), member("u2", "Bob", "")},
		},
		DisplayName: "Ops",
	}
	if !(Filter{Search: "bob"}).Matches(e) {
		t.Error("group search should match member names")
	}

	dm := Entry{
		Detail:      model.ChatDetail{Chat: model.Chat{ID: "c1"}, Members: []model.ChatMember{member("u2", "Bob", "")}},
		DisplayName: "Bob",
	}
	if (Filter{Search: "alice"}).Matches(dm) {
		t.Error("direct chats match on display name only")
	}
}

func TestFilterMatches(t *testing.T) {
	group := Entry{
		Detail: model.ChatDetail{
			Chat:   model.Chat{ID: "g1", IsGroup: true, Name: "Platform Team"},
			Labels: []model.Label{{ID: "l1", Name: "work"}},
		},
		DisplayName: "Platform Team",
	}
	direct := Entry{
		Detail:      model.ChatDetail{Chat: model.Chat{ID: "c1"}},
		DisplayName: "Bob",
	}

	cases := []struct {
		name  string
		f     Filter
		e     Entry
		match bool
	}{
		{"zero filter matches", Filter{}, direct, true},
		{"search case-insensitive", Filter{Search: "platform"}, group, true},
		{"search miss", Filter{Search: "random"}, group, false},
		{"kind group", Filter{Kind: "group"}, direct, false},
		{"kind direct", Filter{Kind: "direct"}, direct, true},
		{"label hit", Filter{LabelID: "l1"}, group, true},
		{"label miss", Filter{LabelID: "l2"}, group, false},
		{"all criteria AND", Filter{Search: "team", Kind: "group", LabelID: "l1"}, group, true},
		{"AND fails on one", Filter{Search: "team", Kind: "direct", LabelID: "l1"}, group, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.f.Matches(tc.e); got != tc.match {
				t.Errorf("Matches = %v, want %v", got, tc.match)
			}
		})
	}
}
