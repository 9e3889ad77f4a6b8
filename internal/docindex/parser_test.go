package docindex

import (
	"strings"
	"testing"
)

const lessonMarkdown = `مقدمة الكتاب

# اسم الإشارة

هذا للمفرد المذكر القريب.

## البعيد

ذلك للمذكر وتلك للمؤنثة.

` + "```" + `
# ليس عنوانا
` + "```" + `

### فارغ
`

func TestParser_ParseSections(t *testing.T) {
	sections := NewParser().ParseSections(lessonMarkdown)

	if len(sections) != 4 {
		t.Fatalf("sections = %d, want 4: %+v", len(sections), sections)
	}

	if sections[0].Heading != "" || sections[0].Level != 0 || sections[0].Content != "مقدمة الكتاب" {
		t.Errorf("intro = %+v", sections[0])
	}
	if sections[1].Heading != "اسم الإشارة" || sections[1].Level != 1 {
		t.Errorf("sections[1] = %+v", sections[1])
	}
	if sections[2].Heading != "البعيد" || sections[2].Level != 2 {
		t.Errorf("sections[2] = %+v", sections[2])
	}
	if !strings.Contains(sections[2].Content, "# ليس عنوانا") {
		t.Error("a heading inside a code fence should stay in the body")
	}
	if sections[3].Heading != "فارغ" || sections[3].Content != "" {
		t.Errorf("sections[3] = %+v", sections[3])
	}
}

func TestParser_NoHeadings(t *testing.T) {
	sections := NewParser().ParseSections("الفاعل مرفوع\nوالمفعول به منصوب")
	if len(sections) != 1 || sections[0].Heading != "" {
		t.Fatalf("sections = %+v", sections)
	}
	if sections[0].Text() != "الفاعل مرفوع\nوالمفعول به منصوب" {
		t.Errorf("Text() = %q", sections[0].Text())
	}
}

func TestSection_Text(t *testing.T) {
	s := Section{Heading: "الإعراب", Level: 1, Content: "الرفع والنصب"}
	if s.Text() != "الإعراب\nالرفع والنصب" {
		t.Errorf("Text() = %q", s.Text())
	}
}

func TestSplitMarkdown_KeepsSectionsApart(t *testing.T) {
	parts := splitMarkdown(NewParser(), NewChunker(500, 50), lessonMarkdown)

	if len(parts) != 3 {
		t.Fatalf("parts = %d, want one per non-empty section: %q", len(parts), parts)
	}
	if !strings.HasPrefix(parts[1], "اسم الإشارة\n") || strings.Contains(parts[1], "ذلك") {
		t.Errorf("parts[1] = %q", parts[1])
	}
	if !strings.HasPrefix(parts[2], "البعيد\n") {
		t.Errorf("parts[2] = %q", parts[2])
	}
	for _, p := range parts {
		if strings.Contains(p, "فارغ") {
			t.Error("a heading without a body should not become a chunk")
		}
	}
}
