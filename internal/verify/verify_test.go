package verify

import (
	"strings"
	"testing"

	"github.com/fetchkit/browsecore/models"
)

func longText(n int) string {
	var sb strings.Builder
	for sb.Len() < n {
		sb.WriteString("lorem ipsum dolor sit amet consectetur adipiscing elit ")
	}
	return sb.String()[:n]
}

func TestDetectContentAnomaliesChallenge(t *testing.T) {
	html := `<html><body>Checking your browser before accessing example.com</body></html>`
	got := DetectContentAnomalies(html, models.PageContent{Title: "Just a moment...", Text: longText(600)}, "")
	if !got.IsAnomaly || got.Type != models.AnomalyChallenge {
		t.Fatalf("expected challenge anomaly, got %+v", got)
	}
	if got.SuggestedAction != models.ActionWait {
		t.Fatalf("expected suggested action wait, got %s", got.SuggestedAction)
	}
}

func TestDetectContentAnomaliesErrorPage(t *testing.T) {
	html := `<html><head><title>404 Not Found</title></head><body>Sorry, nothing here.</body></html>`
	got := DetectContentAnomalies(html, models.PageContent{Title: "404 Not Found", Text: "Sorry, nothing here."}, "")
	if !got.IsAnomaly || got.Type != models.AnomalyErrorPage {
		t.Fatalf("expected error_page anomaly, got %+v", got)
	}
}

func TestDetectContentAnomaliesEmpty(t *testing.T) {
	got := DetectContentAnomalies("<html><body></body></html>", models.PageContent{Title: "X", Text: ""}, "")
	if !got.IsAnomaly || got.Type != models.AnomalyEmpty {
		t.Fatalf("expected empty anomaly, got %+v", got)
	}
}

func TestDetectContentAnomaliesShellDOM(t *testing.T) {
	html := `<html><body><div id="root"></div></body></html>`
	got := DetectContentAnomalies(html, models.PageContent{Title: "App", Text: longText(100)}, "")
	if !got.IsAnomaly || got.Type != models.AnomalyShellDOM {
		t.Fatalf("expected shell_dom anomaly, got %+v", got)
	}
}

func TestDetectContentAnomaliesCaptcha(t *testing.T) {
	html := `<html><body><div class="g-recaptcha" data-sitekey="abc"></div></body></html>`
	got := DetectContentAnomalies(html, models.PageContent{Title: "Verify", Text: longText(600)}, "")
	if !got.IsAnomaly || got.Type != models.AnomalyCaptcha {
		t.Fatalf("expected captcha anomaly, got %+v", got)
	}
	if got.SuggestedAction != models.ActionChangeAgent {
		t.Fatalf("expected change_agent action, got %s", got.SuggestedAction)
	}
}

func TestDetectContentAnomaliesRateLimit(t *testing.T) {
	html := `<html><body>Too many requests, please slow down.</body></html>`
	got := DetectContentAnomalies(html, models.PageContent{Title: "Slow down", Text: longText(600)}, "")
	if !got.IsAnomaly || got.Type != models.AnomalyRateLimit {
		t.Fatalf("expected rate_limit anomaly, got %+v", got)
	}
}

func TestDetectContentAnomaliesTopicDrift(t *testing.T) {
	got := DetectContentAnomalies("<html><body>content</body></html>", models.PageContent{Title: "Cats", Text: longText(600)}, "quantum computing")
	if !got.IsAnomaly || got.Type != models.AnomalyTopicDrift {
		t.Fatalf("expected topic_drift anomaly, got %+v", got)
	}
}

func TestDetectContentAnomaliesNone(t *testing.T) {
	html := `<html><body><article><h1>Title</h1><p>` + longText(600) + `</p></article></body></html>`
	got := DetectContentAnomalies(html, models.PageContent{Title: "Title", Text: longText(600)}, "")
	if got.IsAnomaly {
		t.Fatalf("expected no anomaly, got %+v", got)
	}
}

func TestVerifyBasicPassesCleanContent(t *testing.T) {
	html := `<html><body><article><h1>T</h1></article></body></html>`
	content := models.PageContent{Title: "T", Text: longText(600)}
	v, anomaly := Verify(models.VerifyBasic, html, content, Options{})
	if !v.Passed {
		t.Fatalf("expected basic verification to pass, got errors %v", v.Errors)
	}
	if anomaly.IsAnomaly {
		t.Fatalf("expected no anomaly, got %+v", anomaly)
	}
}

func TestVerifyBasicFailsShortContent(t *testing.T) {
	content := models.PageContent{Title: "T", Text: "short"}
	v, _ := Verify(models.VerifyBasic, "<html></html>", content, Options{})
	if v.Passed {
		t.Fatal("expected basic verification to fail on short content")
	}
}

func TestVerifyStandardRunsValidators(t *testing.T) {
	html := `<html><body><main><p>` + longText(600) + `</p></main></body></html>`
	content := models.PageContent{Title: "T", Text: longText(600) + " Access Denied"}
	validators := []models.Validator{{ForbiddenSubstrings: []string{"Access Denied"}}}
	v, _ := Verify(models.VerifyStandard, html, content, Options{Validators: validators})
	if v.Passed {
		t.Fatal("expected standard verification to fail on forbidden substring")
	}
	found := false
	for _, e := range v.Errors {
		if strings.Contains(e, "Access Denied") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected forbidden-substring error, got %v", v.Errors)
	}
}

func TestVerifyStandardWarnsWithoutStructuralMarker(t *testing.T) {
	html := `<html><body><div>` + longText(600) + `</div></body></html>`
	content := models.PageContent{Title: "T", Text: longText(600)}
	v, _ := Verify(models.VerifyStandard, html, content, Options{})
	if !v.Passed {
		t.Fatalf("expected pass despite missing structural marker, got errors %v", v.Errors)
	}
	if len(v.Warnings) == 0 {
		t.Fatal("expected a warning about the missing structural marker")
	}
}

func TestVerifyThoroughChecksPatternFieldCoverage(t *testing.T) {
	html := `<html><body><article><h1>T</h1></article></body></html>`
	content := models.PageContent{Title: "T", Text: longText(600)}
	patterns := []models.ApiPattern{{ContentMapping: map[string]string{"title": "title", "author": "author", "date": "published"}}}
	v, _ := Verify(models.VerifyThorough, html, content, Options{Patterns: patterns})
	if v.Passed {
		t.Fatal("expected thorough verification to fail when fewer than half of the registry-mapped fields are present")
	}
}

func TestApplyValidatorsAllRules(t *testing.T) {
	validators := []models.Validator{{
		MinTextLength:       10,
		RequiredSubstrings:  []string{"hello"},
		ForbiddenSubstrings: []string{"banned"},
		LanguageTag:         "en",
		MinLinkCount:        2,
	}}

	ok, reasons := ApplyValidators(validators, "hello world this is fine", "en-US", 3)
	if !ok {
		t.Fatalf("expected valid, got reasons %v", reasons)
	}

	ok, reasons = ApplyValidators(validators, "short", "fr", 0)
	if ok {
		t.Fatal("expected invalid")
	}
	if len(reasons) == 0 {
		t.Fatal("expected reasons for invalid content")
	}
}
