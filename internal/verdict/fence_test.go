package verdict

import "testing"

func TestStripFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "no fence",
			in:   `{"score": 1}`,
			want: `{"score": 1}`,
		},
		{
			name: "bare fence",
			in:   "```\n{\"score\": 1}\n```",
			want: `{"score": 1}`,
		},
		{
			name: "json tag",
			in:   "```json\n{\"score\": 1}\n```",
			want: `{"score": 1}`,
		},
		{
			name: "crlf line endings",
			in:   "```json\r\n{\"score\": 1}\r\n```",
			want: "{\"score\": 1}\r",
		},
		{
			name: "inner backticks untouched",
			in:   "```json\n{\"f\": \"use ``` for code\"}\n```",
			want: "{\"f\": \"use ``` for code\"}",
		},
		{
			name: "opening fence only",
			in:   "```json\n{\"score\": 1}",
			want: "```json\n{\"score\": 1}",
		},
		{
			name: "closing fence only",
			in:   "{\"score\": 1}\n```",
			want: "{\"score\": 1}\n```",
		},
		{
			name: "prose after tag is not a fence",
			in:   "```here is json\n{}\n```",
			want: "```here is json\n{}\n```",
		},
		{
			name: "single line",
			in:   "```",
			want: "```",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripFence(tt.in); got != tt.want {
				t.Errorf("StripFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
