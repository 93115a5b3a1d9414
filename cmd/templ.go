package cmd

const HELP_TEMPL = `Usage: {{if .UsageText}}{{.UsageText}}{{else}}{{.HelpName}} {{if .VisibleFlags}}[global options]{{end}}{{if .Commands}} command [command options]{{end}} {{if .ArgsUsage}}{{.ArgsUsage}}{{else}}[arguments...]{{end}}{{end}}
{{.Description}}{{if .VisibleCommands}}
Commands:{{range .VisibleCategories}}{{if .Name}}

{{.Name}}:{{range .VisibleCommands}}
  {{join .Names ", "}}{{"\t"}}{{.Usage}}{{end}}{{else}}{{range .VisibleCommands}}
{{"\t"}}{{index .Names 0}}{{"\t:\t"}}{{.Usage}}{{end}}{{end}}{{end}}{{end}}{{if .VisibleFlags}}{{end}}

Use "{{.HelpName}} help <command>" for more information about any command.

`

const CMD_HELP_TEMPL = `{{if .Description}}{{.Description}}{{else}}{{.HelpName}} - {{.Usage}}

{{end}}Usage:
        {{.HelpName}} {{if .UsageText}}{{.UsageText}}{{else}}[arguments...]{{end}}{{if .VisibleFlags}}

Supported Flags:{{range .VisibleFlags}}
  {{.}}{{end}}{{end}}

`

const DESCRIPTION = `
opfetch is an asynchronous http client. It negotiates basic, digest and
ntlm authentication, keeps session cookies across requests, reports live
transfer progress and can pause a transfer until you supply credentials.
`

const GetDescription = `
The get command fetches a url. The response body is written to stdout,
or to a file when an output path is set. When the server challenges the
request, stored credentials are tried first and you are prompted only
when none fit.

Example:
        opfetch get -o index.html https://example.org/
`

const PostDescription = `
The post command submits a form to a url. Plain fields are sent
urlencoded; adding a file switches the body to multipart with an exact
precomputed length, so the server sees Content-Length even for large
uploads.

Example:
        opfetch post -d user=jan -F avatar=./jan.png https://example.org/profile
`

const CredsDescription = `
The creds command manages the credential vault. Stored credentials are
keyed by host, port, protocol and realm; passwords are sealed with a
master key held in the system keyring.
`

const CookiesDescription = `
The cookies command manages the persistent cookie store. Import accepts
Netscape-format cookies.txt files as exported by browser extensions.
`
