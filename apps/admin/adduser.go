package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(name, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	name = core.CleanString(name)
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	exists := err == nil
	if err != nil && errors.Cause(err) != user.ErrNotFound {
		return err
	}

	now := core.NowFunc().UTC()
	if !exists {
		usr = user.User{Email: email, CreatedAt: now}
	}
	usr.Name = name
	usr.Role = user.RoleTeacher
	if isAdmin {
		usr.Role = user.RoleAdmin
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if exists {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	}
	return err
}
