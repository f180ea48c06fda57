package discover

import (
	"reflect"
	"testing"
)

func TestInferTags(t *testing.T) {
	cases := []struct {
		name string
		want []string
	}{
		{"subnet-23-nuance", []string{"subnet"}},
		{"general", []string{"general"}},
		{"announcements", []string{"announcements"}},
		{"general-announcements", []string{"general", "announcements"}},
		{"random-chat", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := InferTags(tc.name); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("InferTags(%q) = %v, want %v", tc.name, got, tc.want)
			}
		})
	}
}
