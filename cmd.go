package main

import "github.com/stupid-simple/patchwatch/patchlist"

type DatabaseArgs struct {
	Database string `help:"database path, or postgres DSN with --driver=postgres" short:"d" required:""`
	Driver   string `help:"database driver" enum:"sqlite,postgres" default:"sqlite"`
}

type Command struct {
	Version struct{} `cmd:"" help:"Print version information."`
	Seed    struct {
		DatabaseArgs `embed:""`
		File         string `help:"seed document, the built in repository catalogue when empty" type:"existingfile"`
		DryRun       bool   `help:"don't write anything, just print the output"`
	} `cmd:"" help:"Insert the repository catalogue and expansion mappings."`
	Reconcile struct {
		DatabaseArgs `embed:""`
		Repository   string         `help:"repository slug" short:"r" required:""`
		PatchList    string         `help:"patch list file path or http(s) url" short:"p" required:""`
		Mode         patchlist.Mode `help:"offered or scraped" default:"offered"`
		Config       string         `help:"config file with the alert settings" short:"c" type:"existingfile"`
		DryRun       bool           `help:"don't write anything, just print the output"`
	} `cmd:"" help:"Reconcile one patch list snapshot against the stored history."`
	Daemon struct {
		DatabaseArgs `embed:""`
		Config       string `help:"config file path" short:"c" required:""`
		Once         bool   `help:"run every enabled repository once and exit"`
		DryRun       bool   `help:"don't write anything, just print the output"`
	} `cmd:"" help:"Run the patch watcher service."`
	Serve struct {
		DatabaseArgs `embed:""`
		Listen       string `help:"listen address" short:"l" default:":8080"`
	} `cmd:"" help:"Serve the patch history API."`
}
