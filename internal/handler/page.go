package handler

import (
	"html/template"
	"io"
)

type pageData struct {
	ErrorMessage      string
	AttemptsRemaining int
	ShowAttempts      bool
}

var verifyPage = template.Must(template.New("verify").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Access code required</title>
  <style>
    body { font-family: system-ui, sans-serif; background: #f3f4f6; color: #111827;
           display: flex; justify-content: center; align-items: center; min-height: 100vh; margin: 0; }
    main { background: #fff; border-radius: 0.75rem; padding: 2rem; width: 100%; max-width: 420px;
           box-shadow: 0 10px 25px rgba(0, 0, 0, 0.08); }
    h1 { font-size: 1.25rem; margin-top: 0; }
    .alert { padding: 0.75rem 1rem; border-radius: 0.5rem; margin-bottom: 1rem; }
    .alert-error { background: #fee2e2; color: #b91c1c; }
    .alert-warning { background: #fef3c7; color: #92400e; }
    label { display: block; margin-bottom: 0.5rem; }
    input { width: 100%; box-sizing: border-box; padding: 0.75rem; font-size: 1rem;
            border: 1px solid #d1d5db; border-radius: 0.5rem; }
    button { margin-top: 1rem; width: 100%; padding: 0.75rem; font-size: 1rem; border: 0;
             border-radius: 0.5rem; background: #4f46e5; color: #fff; cursor: pointer; }
    button:disabled { background: #d1d5db; cursor: not-allowed; }
  </style>
</head>
<body>
  <main>
    <h1>Enter your access code</h1>
    {{if .ErrorMessage}}<div class="alert alert-error" role="alert">{{.ErrorMessage}}</div>{{end}}
    {{if .ShowAttempts}}<div class="alert alert-warning">{{.AttemptsRemaining}} attempt{{if ne .AttemptsRemaining 1}}s{{end}} remaining before temporary lockout.</div>{{end}}
    <form id="verifyForm">
      <label for="codeInput">Access code</label>
      <input id="codeInput" type="text" required autofocus maxlength="64" autocomplete="one-time-code">
      <button id="verifyButton" type="submit">Continue</button>
    </form>
  </main>
  <script>
    document.getElementById('verifyForm').addEventListener('submit', async (e) => {
      e.preventDefault();
      const button = document.getElementById('verifyButton');
      const code = document.getElementById('codeInput').value.trim();
      button.disabled = true;
      try {
        const response = await fetch('/verify', {
          method: 'POST',
          headers: { 'Content-Type': 'application/json', 'Accept': 'application/json' },
          body: JSON.stringify({ code: code })
        });
        if (response.ok) {
          window.location.href = await response.text();
          return;
        }
        const body = await response.json();
        const params = new URLSearchParams({ error: body.message || 'Verification failed.' });
        if (body.attemptsRemaining !== undefined) {
          params.set('attempts', String(body.attemptsRemaining));
        }
        window.location.search = params.toString();
      } catch (err) {
        button.disabled = false;
        alert('Network error. Please check your connection and try again.');
      }
    });
  </script>
</body>
</html>
`))

func renderPage(w io.Writer, data pageData) error {
	return verifyPage.Execute(w, data)
}
