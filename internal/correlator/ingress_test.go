package correlator

import (
	"testing"

	"github.com/mohammad-safakhou/enroller/internal/ledger"
)

func TestDecodeWebhookAliases(t *testing.T) {
	cases := []struct {
		name       string
		body       string
		identifier string
		content    string
		agent      string
	}{
		{"canonical", `{"chainRunId":"cr-1","response":"Approval Likelihood: Low","agentName":"Reviewer"}`, "cr-1", "Approval Likelihood: Low", "Reviewer"},
		{"snake case", `{"run_id":"r-2","output":"done","agent":"bot"}`, "r-2", "done", "bot"},
		{"nested data", `{"event":"finished","data":{"runId":"r-3","content":"nested"}}`, "r-3", "nested", ""},
		{"structured content", `{"id":"r-4","result":{"score":3}}`, "r-4", `{"score":3}`, ""},
		{"numeric id", `{"id":778899,"text":"t"}`, "778899", "t", ""},
		{"envelope id loses to nested run id", `{"id":"evt_1","data":{"chainRunId":"CR-abcdef1234567","output":"ok"}}`, "CR-abcdef1234567", "ok", ""},
		{"generic id falls back to nested", `{"event":"done","data":{"id":"r-5","text":"t"}}`, "r-5", "t", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := DecodeWebhook([]byte(tc.body))
			if err != nil {
				t.Fatalf("DecodeWebhook: %v", err)
			}
			if ev.Channel != ledger.SourceWebhook || ev.Identifier != tc.identifier || ev.Content != tc.content || ev.AgentName != tc.agent {
				t.Fatalf("unexpected event: %+v", ev)
			}
		})
	}
}

func TestDecodeWebhookNonJSON(t *testing.T) {
	ev, err := DecodeWebhook([]byte("plain text body"))
	if err == nil {
		t.Fatal("expected decode error")
	}
	if ev.Raw != "plain text body" || ev.Identifier != "" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestIdentifierFromText(t *testing.T) {
	cases := map[string]string{
		"Output from run (cr_01HZY8Q4W9)":            "cr_01HZY8Q4W9",
		"Re: output from run ( abc-123 ) completed":  "abc-123",
		"Your chain run id: 5f1e2d3c4b":              "5f1e2d3c4b",
		"Run ID: r_889900":                           "r_889900",
		"Chain run identifier: RUN123456789ABC":      "RUN123456789ABC",
		"Run identifier: r-42abc":                    "r-42abc",
		"Nothing to see here, we will run it again.": "",
	}
	for in, want := range cases {
		if got := IdentifierFromText(in); got != want {
			t.Fatalf("IdentifierFromText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseEmailRFC822(t *testing.T) {
	raw := "From: Eligibility Agent <agent@automation.test>\r\n" +
		"To: intake@clinic.test\r\n" +
		"Subject: Output from run (cr_5566778899)\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"\r\n" +
		"Approval Likelihood: Medium=0A\r\n"
	e := ParseEmail(raw)
	if e.Subject != "Output from run (cr_5566778899)" || e.From != "Eligibility Agent" {
		t.Fatalf("unexpected headers: %+v", e)
	}
	if e.Body != "Approval Likelihood: Medium" {
		t.Fatalf("unexpected body: %q", e.Body)
	}
}

func TestParseEmailMultipart(t *testing.T) {
	raw := "From: agent@automation.test\r\n" +
		"Subject: results\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=XYZ\r\n" +
		"\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>html</p>\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"Run ID: mp-123456\r\n" +
		"--XYZ--\r\n"
	e := ParseEmail(raw)
	if e.Body != "Run ID: mp-123456" || e.From != "agent@automation.test" {
		t.Fatalf("unexpected email: %+v", e)
	}
}

func TestDecodeEmailForms(t *testing.T) {
	ev := DecodeEmail([]byte(`{"from":"Agent","subject":"Output from run (json-run-001)","body":"Approval Likelihood: High"}`))
	if ev.Channel != ledger.SourceEmail || ev.Identifier != "json-run-001" || ev.Content != "Approval Likelihood: High" || ev.AgentName != "Agent" {
		t.Fatalf("unexpected JSON email event: %+v", ev)
	}

	ev = DecodeEmail([]byte("Subject: Output from run (plain-run-002)\nThe review is attached."))
	if ev.Identifier != "plain-run-002" || ev.Content != "The review is attached." {
		t.Fatalf("unexpected plain email event: %+v", ev)
	}

	ev = DecodeEmail([]byte("no identifier anywhere"))
	if ev.Identifier != "" || ev.Content != "no identifier anywhere" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestParseEmailHTMLOnly(t *testing.T) {
	raw := "From: agent@automation.test\r\n" +
		"Subject: Output from run (html-run-0042)\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<html><head><style>p{color:red}</style></head><body>" +
		"<p><strong>Approval Likelihood:</strong> Low &amp; pending</p>" +
		"<p>Criteria Assessment:</p><ul><li>&#x274C; Proof of residence</li></ul>" +
		"<script>alert('x')</script></body></html>\r\n"
	e := ParseEmail(raw)
	want := "Approval Likelihood: Low & pending\nCriteria Assessment:\n- ❌ Proof of residence"
	if e.Body != want {
		t.Fatalf("unexpected body:\n%q\nwant\n%q", e.Body, want)
	}
}

func TestParseEmailBase64(t *testing.T) {
	raw := "From: agent@automation.test\r\n" +
		"Subject: results\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"UnVuIElEOiBiNjQtcnVuLTAw\r\nMQ==\r\n"
	e := ParseEmail(raw)
	if e.Body != "Run ID: b64-run-001" {
		t.Fatalf("unexpected body: %q", e.Body)
	}
}
