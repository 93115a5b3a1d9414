package cmd

import (
	"errors"
	"fmt"
	"sort"

	"github.com/urfave/cli"

	"github.com/opfetch/opfetch/cmd/common"
)

func credsList(ctx *cli.Context) error {
	dir, err := configDir()
	if err != nil {
		common.PrintRuntimeErr(ctx, "creds", "config_dir", err)
		return nil
	}
	cm, err := openVault(dir)
	if err != nil {
		common.PrintRuntimeErr(ctx, "creds", "open_vault", err)
		return nil
	}
	defer cm.Close()

	keys := cm.Keys()
	if len(keys) == 0 {
		fmt.Println("no stored credentials")
		return nil
	}
	sort.Strings(keys)
	for _, k := range keys {
		cred, err := cm.GetCredential(k)
		if err != nil {
			fmt.Printf("%s\t<unreadable>\n", k)
			continue
		}
		fmt.Printf("%s\t%s\n", k, cred.Username)
	}
	return nil
}

func credsRemove(ctx *cli.Context) error {
	key := ctx.Args().First()
	if key == "" {
		return common.PrintErrWithCmdHelp(
			ctx,
			errors.New("no credential key provided"),
		)
	}
	dir, err := configDir()
	if err != nil {
		common.PrintRuntimeErr(ctx, "creds", "config_dir", err)
		return nil
	}
	cm, err := openVault(dir)
	if err != nil {
		common.PrintRuntimeErr(ctx, "creds", "open_vault", err)
		return nil
	}
	defer cm.Close()

	if err := cm.DeleteCredential(key); err != nil {
		common.PrintRuntimeErr(ctx, "creds", "remove", err)
		return nil
	}
	fmt.Printf("removed %s\n", key)
	return nil
}

func credsClear(ctx *cli.Context) error {
	dir, err := configDir()
	if err != nil {
		common.PrintRuntimeErr(ctx, "creds", "config_dir", err)
		return nil
	}
	cm, err := openVault(dir)
	if err != nil {
		common.PrintRuntimeErr(ctx, "creds", "open_vault", err)
		return nil
	}
	defer cm.Close()

	if err := cm.Clear(); err != nil {
		common.PrintRuntimeErr(ctx, "creds", "clear", err)
		return nil
	}
	fmt.Println("credential vault cleared")
	return nil
}
