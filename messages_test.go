package sdkforge

import "testing"

func TestMessageRender(t *testing.T) {
	ms := MessageStore{
		"dist.manual": {
			"en": "download ${file} and place it at ${dest_path}",
			"de": "lade ${file} herunter",
		},
		"dist.eula": {
			"zh": "请先同意许可协议",
		},
	}
	params := map[string]string{"file": "sdk.tar.xz", "dest_path": "/cache/sdk.tar.xz"}

	if got, want := ms.Render("dist.manual", "en", params), "download sdk.tar.xz and place it at /cache/sdk.tar.xz"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
	// Unknown language falls back to English.
	if got, want := ms.Render("dist.manual", "fr", params), "download sdk.tar.xz and place it at /cache/sdk.tar.xz"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
	// No English template at all still renders something.
	if got, want := ms.Render("dist.eula", "en", nil), "请先同意许可协议"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
	if got := ms.Render("no.such.id", "en", nil); got != "" {
		t.Errorf("got: %q, want empty", got)
	}
}
