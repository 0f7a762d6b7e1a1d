// Package appfs embeds the files the binaries ship with: SQL migrations and email templates.
package appfs

import "embed"

//go:embed migrations/*.sql templates/email/*
var FS embed.FS
