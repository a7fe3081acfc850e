package core

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		header string
		label  string
		want   float64
	}{
		{"Name", "Name", 1.0},
		{"Email", "E-mail", 0.8},
		{"name", "Name", 0.75}, // case-sensitive
		{"Lastname", "Last Name", 0.75},
		{"abcd", "abxy", 0.5},
		{"ID", "Identifier", 0}, // raw score is negative, clamped
		{"", "", 1.0},
		{"", "Name", 0},
		{"日本", "日本語", 0.5}, // rune lengths, not bytes
	}

	for _, tt := range tests {
		t.Run(tt.header+"/"+tt.label, func(t *testing.T) {
			got := Similarity(tt.header, tt.label)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Similarity(%q, %q) = %v, want %v", tt.header, tt.label, got, tt.want)
			}
		})
	}
}

func TestMatchHeaders(t *testing.T) {
	tests := []struct {
		name    string
		attrs   []AttributeSpec
		headers []string
		want    map[string]string
	}{
		{
			name:    "single exact match, extra header ignored",
			attrs:   []AttributeSpec{{Key: "name", Labels: []string{"Name"}}},
			headers: []string{"Name", "Email"},
			want:    map[string]string{"name": "Name"},
		},
		{
			name:    "exact match wins regardless of label order",
			attrs:   []AttributeSpec{{Key: "email", Labels: []string{"E-mail address", "Email"}}},
			headers: []string{"Emial", "Email"},
			want:    map[string]string{"email": "Email"},
		},
		{
			name: "fuzzy matches above threshold",
			attrs: []AttributeSpec{
				{Key: "first_name", Labels: []string{"First Name"}},
				{Key: "last_name", Labels: []string{"Last Name"}},
				{Key: "email", Labels: []string{"Email"}},
			},
			headers: []string{"Firstname", "Lastname", "email"},
			want:    map[string]string{"first_name": "Firstname", "last_name": "Lastname", "email": "email"},
		},
		{
			name:    "similarity exactly at threshold is not enough",
			attrs:   []AttributeSpec{{Key: "x", Labels: []string{"abxy"}}},
			headers: []string{"abcd"},
			want:    map[string]string{},
		},
		{
			name:    "no qualifying header leaves attribute absent",
			attrs:   []AttributeSpec{{Key: "phone", Labels: []string{"Phone Number"}}},
			headers: []string{"Notes"},
			want:    map[string]string{},
		},
		{
			name: "first attribute claims the header",
			attrs: []AttributeSpec{
				{Key: "short", Labels: []string{"Nam"}},
				{Key: "exact", Labels: []string{"Name"}},
			},
			headers: []string{"Name"},
			want:    map[string]string{"short": "Name"},
		},
		{
			name:    "tie goes to the first header",
			attrs:   []AttributeSpec{{Key: "name", Labels: []string{"Name"}}},
			headers: []string{"Nam", "Nme"},
			want:    map[string]string{"name": "Nam"},
		},
		{
			name:    "empty header only matches empty label",
			attrs:   []AttributeSpec{{Key: "blank", Labels: []string{""}}, {Key: "name", Labels: []string{"Name"}}},
			headers: []string{"", "Name"},
			want:    map[string]string{"blank": "", "name": "Name"},
		},
		{
			name:    "empty headers",
			attrs:   []AttributeSpec{{Key: "name", Labels: []string{"Name"}}},
			headers: nil,
			want:    map[string]string{},
		},
		{
			name:    "empty attributes",
			attrs:   nil,
			headers: []string{"Name"},
			want:    map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchHeaders(tt.attrs, tt.headers)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("MatchHeaders() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMatchHeaders_Properties(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	word := func() string {
		const alphabet = "abcN "
		b := make([]byte, 1+rng.IntN(5))
		for i := range b {
			b[i] = alphabet[rng.IntN(len(alphabet))]
		}
		return string(b)
	}

	for iter := 0; iter < 500; iter++ {
		var attrs []AttributeSpec
		for i := 0; i < 1+rng.IntN(5); i++ {
			spec := AttributeSpec{Key: string(rune('a' + i))}
			for j := 0; j < 1+rng.IntN(3); j++ {
				spec.Labels = append(spec.Labels, word())
			}
			attrs = append(attrs, spec)
		}
		var headers []string
		for i := 0; i < rng.IntN(6); i++ {
			headers = append(headers, word())
		}

		got := MatchHeaders(attrs, headers)

		seen := make(map[string]string)
		for key, header := range got {
			if other, dup := seen[header]; dup {
				t.Fatalf("header %q assigned to both %q and %q (attrs=%v headers=%q)", header, other, key, attrs, headers)
			}
			seen[header] = key

			spec := attrs[key[0]-'a']
			if s := labelSimilarity(header, spec); s <= MatchThreshold {
				t.Fatalf("attribute %q assigned %q with similarity %v", key, header, s)
			}
		}

		for _, h := range headers {
			for _, spec := range attrs {
				if s := labelSimilarity(h, spec); s < 0 || s > 1 {
					t.Fatalf("similarity %v out of range for %q / %v", s, h, spec.Labels)
				}
			}
		}
	}
}

func TestCandidates(t *testing.T) {
	attrs := []AttributeSpec{
		{Key: "name", Labels: []string{"Name"}},
		{Key: "email", Labels: []string{"Email", "E-mail"}},
	}

	t.Run("good match ranks above ignore", func(t *testing.T) {
		got := Candidates("Email", attrs)
		if len(got) != 3 {
			t.Fatalf("got %d candidates, want 3", len(got))
		}
		if got[0].Attribute != "email" || got[0].Similarity != 1.0 {
			t.Errorf("first candidate = %+v, want email at 1.0", got[0])
		}
		if !got[1].Ignore || got[1].Similarity != IgnoreSimilarity || got[1].Attribute != "" {
			t.Errorf("second candidate = %+v, want ignore sentinel", got[1])
		}
		if got[2].Attribute != "name" {
			t.Errorf("third candidate = %+v, want name", got[2])
		}
		for _, c := range got {
			if c.Header != "Email" {
				t.Errorf("candidate header = %q, want Email", c.Header)
			}
		}
	})

	t.Run("no good match puts ignore first", func(t *testing.T) {
		got := Candidates("Notes", attrs)
		if !got[0].Ignore {
			t.Errorf("first candidate = %+v, want ignore sentinel", got[0])
		}
	})

	t.Run("attribute tied with ignore ranks first", func(t *testing.T) {
		got := Candidates("abcde", []AttributeSpec{{Key: "x", Labels: []string{"abxye"}}})
		if got[0].Attribute != "x" || got[0].Similarity != IgnoreSimilarity || !got[1].Ignore {
			t.Errorf("got %+v, want x then ignore", got)
		}
	})

	t.Run("equal attributes keep declaration order", func(t *testing.T) {
		got := Candidates("X", []AttributeSpec{
			{Key: "b", Labels: []string{"X"}},
			{Key: "a", Labels: []string{"X"}},
		})
		want := []HeaderCandidate{
			{Header: "X", Attribute: "b", Similarity: 1},
			{Header: "X", Attribute: "a", Similarity: 1},
			{Header: "X", Similarity: IgnoreSimilarity, Ignore: true},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Candidates() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("no attributes yields only ignore", func(t *testing.T) {
		got := Candidates("Anything", nil)
		if len(got) != 1 || !got[0].Ignore {
			t.Errorf("got %+v, want only the ignore sentinel", got)
		}
	})
}

func TestProposeMapping(t *testing.T) {
	attrs := []AttributeSpec{
		{Key: "first_name", Labels: []string{"First Name", "Given Name"}},
		{Key: "email", Labels: []string{"Email"}},
	}
	headers := []string{"First name", "Notes", "email"}

	got := ProposeMapping(attrs, headers)
	want := ColumnMapping{"First name": "first_name", "Notes": "", "email": "email"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ProposeMapping() mismatch (-want +got):\n%s", diff)
	}

	if got := DefaultAttributeForHeader("Notes", MatchHeaders(attrs, headers)); got != "" {
		t.Errorf("DefaultAttributeForHeader(Notes) = %q, want empty", got)
	}
}

func TestSuggest(t *testing.T) {
	attrs := []AttributeSpec{{Key: "email", Labels: []string{"Email"}}}
	got := Suggest(attrs, []string{"Notes", "Email"})

	if len(got) != 2 {
		t.Fatalf("got %d suggestions, want 2", len(got))
	}
	if got[0].Index != 0 || got[0].Header != "Notes" || got[0].Proposed != "" {
		t.Errorf("suggestion[0] = %+v", got[0])
	}
	if got[1].Index != 1 || got[1].Proposed != "email" || got[1].Candidates[0].Attribute != "email" {
		t.Errorf("suggestion[1] = %+v", got[1])
	}
}
