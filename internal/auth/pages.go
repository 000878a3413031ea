package auth

import "fmt"

// Raw HTTP responses for the login callback. The callback server speaks
// just enough HTTP/1.1 for the browser handshake; see BrowserLogin for
// why net/http is not used here.

const preflightResponse = "HTTP/1.1 200 OK\r\n" +
	"Access-Control-Allow-Origin: *\r\n" +
	"Access-Control-Allow-Methods: GET, OPTIONS\r\n" +
	"Access-Control-Allow-Headers: *\r\n" +
	"Access-Control-Max-Age: 86400\r\n" +
	"Content-Length: 0\r\n" +
	"Connection: keep-alive\r\n" +
	"\r\n"

const successPage = `<!DOCTYPE html>
<html>
<head><title>Recipe Sync</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 4em;">
<h1>Signed in</h1>
<p>You can close this tab and return to Recipe Sync.</p>
</body>
</html>
`

const failurePage = `<!DOCTYPE html>
<html>
<head><title>Recipe Sync</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 4em;">
<h1>Sign-in failed</h1>
<p>Please close this tab and try again from Recipe Sync.</p>
</body>
</html>
`

var (
	successResponse = htmlResponse("200 OK", successPage)
	failureResponse = htmlResponse("400 Bad Request", failurePage)
)

func htmlResponse(status, body string) string {
	return fmt.Sprintf("HTTP/1.1 %s\r\n"+
		"Content-Type: text/html; charset=utf-8\r\n"+
		"Content-Length: %d\r\n"+
		"Connection: close\r\n"+
		"\r\n%s", status, len(body), body)
}
