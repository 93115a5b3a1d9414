package cmd

import (
	"fmt"
	"runtime"

	"github.com/urfave/cli"

	"github.com/opfetch/opfetch/cmd/common"
)

type BuildArgs struct {
	Version   string
	BuildType string
	Date      string
	Commit    string
}

func Execute(args []string, bArgs BuildArgs) error {
	app := cli.App{
		Name:                  "opfetch",
		HelpName:              "opfetch",
		Usage:                 "An asynchronous http client.",
		Version:               fmt.Sprintf("%s-%s", bArgs.Version, bArgs.BuildType),
		UsageText:             "opfetch <command> [arguments...]",
		Description:           DESCRIPTION,
		CustomAppHelpTemplate: HELP_TEMPL,
		OnUsageError:          common.UsageErrorCallback,
		Commands: []cli.Command{
			{
				Name:                   "get",
				Aliases:                []string{"g"},
				Usage:                  "fetch a url",
				CustomHelpTemplate:     CMD_HELP_TEMPL,
				OnUsageError:           common.UsageErrorCallback,
				Action:                 get,
				Flags:                  getFlags,
				UseShortOptionHandling: true,
				Description:            GetDescription,
			},
			{
				Name:                   "post",
				Aliases:                []string{"p"},
				Usage:                  "submit a form to a url",
				CustomHelpTemplate:     CMD_HELP_TEMPL,
				OnUsageError:           common.UsageErrorCallback,
				Action:                 post,
				Flags:                  postFlags,
				UseShortOptionHandling: true,
				Description:            PostDescription,
			},
			{
				Name:               "creds",
				Usage:              "manage the credential vault",
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Description:        CredsDescription,
				Subcommands: []cli.Command{
					{
						Name:   "list",
						Usage:  "list stored credentials",
						Action: credsList,
					},
					{
						Name:   "remove",
						Usage:  "remove the credential for a protection space",
						Action: credsRemove,
					},
					{
						Name:   "clear",
						Usage:  "remove every stored credential",
						Action: credsClear,
					},
				},
			},
			{
				Name:               "cookies",
				Usage:              "manage the persistent cookie store",
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Description:        CookiesDescription,
				Subcommands: []cli.Command{
					{
						Name:   "import",
						Usage:  "import a Netscape-format cookies.txt file",
						Action: cookiesImport,
					},
					{
						Name:   "flush",
						Usage:  "clear the cookie store",
						Action: cookiesFlush,
					},
				},
			},
			{
				Name:    "help",
				Aliases: []string{"h"},
				Usage:   "prints the help message",
				Action:  common.Help,
			},
			{
				Name:               "version",
				Aliases:            []string{"v"},
				Usage:              "prints installed version of opfetch",
				UsageText:          " ",
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             common.GetVersion,
			},
		},
		Action:                 get,
		Flags:                  getFlags,
		UseShortOptionHandling: true,
		HideHelp:               true,
		HideVersion:            true,
	}
	common.VersionCmdStr = fmt.Sprintf("%s %s (%s_%s)\nBuild: %s=%s\n",
		app.HelpName, app.Version, runtime.GOOS, runtime.GOARCH,
		bArgs.Date, bArgs.Commit,
	)
	return app.Run(args)
}
