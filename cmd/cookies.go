package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/urfave/cli"

	"github.com/opfetch/opfetch/cmd/common"
	"github.com/opfetch/opfetch/internal/cookiestore"
)

func cookiesImport(ctx *cli.Context) error {
	path := ctx.Args().First()
	if path == "" {
		return common.PrintErrWithCmdHelp(
			ctx,
			errors.New("no cookies.txt path provided"),
		)
	}
	imported, err := cookiestore.ParseNetscape(path)
	if err != nil {
		common.PrintRuntimeErr(ctx, "cookies", "parse", err)
		return nil
	}

	dir, err := configDir()
	if err != nil {
		common.PrintRuntimeErr(ctx, "cookies", "config_dir", err)
		return nil
	}
	store, err := cookiestore.Open(filepath.Join(dir, cookieFileName))
	if err != nil {
		common.PrintRuntimeErr(ctx, "cookies", "open_store", err)
		return nil
	}
	defer store.Close()

	existing, err := store.Load()
	if err != nil {
		common.PrintRuntimeErr(ctx, "cookies", "load", err)
		return nil
	}
	if err := store.Save(append(existing, imported...)); err != nil {
		common.PrintRuntimeErr(ctx, "cookies", "save", err)
		return nil
	}
	fmt.Printf("imported %d cookies\n", len(imported))
	return nil
}

func cookiesFlush(ctx *cli.Context) error {
	dir, err := configDir()
	if err != nil {
		common.PrintRuntimeErr(ctx, "cookies", "config_dir", err)
		return nil
	}
	store, err := cookiestore.Open(filepath.Join(dir, cookieFileName))
	if err != nil {
		common.PrintRuntimeErr(ctx, "cookies", "open_store", err)
		return nil
	}
	defer store.Close()

	if err := store.Clear(); err != nil {
		common.PrintRuntimeErr(ctx, "cookies", "clear", err)
		return nil
	}
	fmt.Println("cookie store cleared")
	return nil
}
