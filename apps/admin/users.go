package main

import (
	"context"
	"fmt"

	"github.com/trezcool/homeschool/core"
	"github.com/trezcool/homeschool/core/user"
)

// addFamily registers a family with its first parent.
func (cli *commandLine) addFamily(name, parentName, email, pwd, confirm string) error {
	nf := user.NewFamily{
		FamilyName:      name,
		ParentName:      parentName,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: confirm,
	}
	if err := nf.Validate(cli.validate, cli.svc.Users); err != nil {
		return err
	}
	fam, parent, err := cli.svc.Users.RegisterFamily(context.Background(), nf)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "family %q created (%s), parent %s\n", fam.Name, fam.ID, parent.Email)
	return nil
}

// addUser adds a user to the family of the parent with the given email.
func (cli *commandLine) addUser(familyEmail, name, email, role, pwd, confirm string) error {
	ctx := context.Background()
	parent, err := cli.svc.Users.GetByEmail(ctx, familyEmail)
	if err != nil {
		return err
	}
	if !parent.IsParent() {
		return core.NewPermissionError(fmt.Sprintf("%s is not a parent", parent.Email))
	}

	nu := user.NewUser{
		Name:            name,
		Email:           email,
		Role:            core.Role(role),
		Password:        pwd,
		PasswordConfirm: confirm,
	}
	if err = nu.Validate(cli.validate, cli.svc.Users); err != nil {
		return err
	}
	usr, err := cli.svc.Users.CreateInFamily(ctx, parent.FamilyID, nu)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "user %s (%s) added to family %s\n", usr.Email, usr.Role, usr.FamilyID)
	return nil
}

func (cli *commandLine) resetPassword(email, pwd string) error {
	return cli.svc.Users.ResetPassword(context.Background(), email, pwd)
}
