package callback

import "html/template"

const (
	setupTemplate   = "setup.html"
	successTemplate = "success.html"
	failureTemplate = "failure.html"
	deniedTemplate  = "denied.html"
)

// setupPageHTML shows the authorization URL as a link and as literal text, for terminals
// and remote sessions where the link cannot be followed.
const setupPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>OAuth Setup</title>
    <style>
        body { font-family: system-ui, -apple-system, sans-serif; max-width: 800px; margin: 50px auto; padding: 20px; }
        h1 { color: #333; }
        .auth-link { display: inline-block; padding: 12px 24px; background: #4285f4; color: white; text-decoration: none; border-radius: 6px; margin: 20px 0; }
        .auth-link:hover { background: #357abd; }
        pre { background: #f5f5f5; padding: 15px; border-radius: 6px; overflow-x: auto; white-space: pre-wrap; word-break: break-all; }
        .note { background: #fff3cd; padding: 15px; border-radius: 6px; margin: 20px 0; }
    </style>
</head>
<body>
    <h1>Google OAuth Authorization</h1>
    <p>Click the button below to authorize the agent with your Google account:</p>
    <a href="{{.AuthURL}}" class="auth-link">Authorize with Google</a>
    <div class="note">
        <strong>Note:</strong> After authorization you will be redirected back to this server.
        The token is captured and stored automatically.
    </div>
    <h2>Manual Authorization</h2>
    <p>If the button doesn't work, copy this URL and open it in your browser:</p>
    <pre>{{.AuthURL}}</pre>
</body>
</html>`

const successPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Authorization Successful</title>
    <style>
        body { font-family: system-ui, -apple-system, sans-serif; text-align: center; padding-top: 50px; }
        .success { color: #28a745; }
    </style>
</head>
<body>
    <h1 class="success">Authorization Successful</h1>
    <p>Account: <strong>{{.Email}}</strong></p>
    <p>You can close this window and start using the API.</p>
</body>
</html>`

const failurePageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Authorization Failed</title>
</head>
<body style="font-family: sans-serif; text-align: center; padding-top: 50px;">
    <h1 style="color: #dc3545;">Authorization Failed</h1>
    <p>Error: {{.Message}}</p>
    <p><a href="{{.RetryPath}}">Try Again</a></p>
</body>
</html>`

const deniedPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Login Failed</title>
</head>
<body>
    <h1>Login Failed</h1>
    <p>Error: {{.Error}}</p>
</body>
</html>`

var pageTemplates = func() *template.Template {
	t := template.New(setupTemplate)
	template.Must(t.Parse(setupPageHTML))
	template.Must(t.New(successTemplate).Parse(successPageHTML))
	template.Must(t.New(failureTemplate).Parse(failurePageHTML))
	template.Must(t.New(deniedTemplate).Parse(deniedPageHTML))
	return t
}()
