package generator

import (
	"strings"
	"testing"
)

func TestBuildPromptIncludesAllContextFields(t *testing.T) {
	system, user := BuildPrompt(Context{
		BrandName:            "Acme Advisory",
		Voice:                "direct, candid",
		Audience:             "founders",
		Goals:                "build trust",
		PillarTitle:          "Leadership",
		PillarDescription:    "lessons from scaling teams",
		TemplateStructure:    "hook / story / lesson",
		TemplatePrompt:       "tell a first-person story",
		TemplateCallToAction: "ask a question",
		IdeaHook:             "the firing I regret",
		IdeaAngle:            "honesty over comfort",
	})

	if strings.TrimSpace(system) == "" {
		t.Fatal("system prompt must not be empty")
	}
	for _, want := range []string{
		"Acme Advisory", "direct, candid", "founders", "build trust",
		"Leadership", "lessons from scaling teams",
		"hook / story / lesson", "tell a first-person story",
		"ask a question", "the firing I regret", "honesty over comfort",
	} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q\nprompt:\n%s", want, user)
		}
	}
}

func TestBuildPromptOmitsBlankFields(t *testing.T) {
	_, user := BuildPrompt(Context{Voice: "warm"})
	for _, label := range []string{"Content pillar:", "Template structure:", "Idea hook:"} {
		if strings.Contains(user, label) {
			t.Errorf("blank field rendered as %q", label)
		}
	}
	if !strings.Contains(user, "Voice: warm") {
		t.Errorf("voice missing from prompt:\n%s", user)
	}
}

func TestBuildPromptEmptyContextStillPrompts(t *testing.T) {
	_, user := BuildPrompt(Context{})
	if strings.TrimSpace(user) == "" {
		t.Fatal("empty context must still produce a usable prompt")
	}
}

func TestResolveModelType(t *testing.T) {
	cases := []struct {
		raw, model string
		want       ModelType
		wantErr    bool
	}{
		{"", "gpt-4o-mini", ModelTypeOpenAI, false},
		{"", "claude-sonnet-4-5", ModelTypeAnthropics, false},
		{"openai", "claude-sonnet-4-5", ModelTypeOpenAI, false},
		{"anthropic", "gpt-4o-mini", ModelTypeAnthropics, false},
		{"anthropics", "x", ModelTypeAnthropics, false},
		{"gemini", "x", "", true},
	}
	for _, tc := range cases {
		got, err := resolveModelType(tc.raw, tc.model)
		if tc.wantErr {
			if err == nil {
				t.Errorf("resolveModelType(%q, %q): expected error", tc.raw, tc.model)
			}
			continue
		}
		if err != nil {
			t.Errorf("resolveModelType(%q, %q): %v", tc.raw, tc.model, err)
			continue
		}
		if got != tc.want {
			t.Errorf("resolveModelType(%q, %q) = %q, want %q", tc.raw, tc.model, got, tc.want)
		}
	}
}
