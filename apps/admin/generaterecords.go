package main

import (
	"context"
	"fmt"

	"github.com/greesoft/canteen/apps"
	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/record"
)

func (cli *commandLine) generateRecords(date string, classID int) error {
	if classID < 0 {
		return apps.NewArgumentError("class", "must be a positive id")
	}
	gr := record.GenerateRecords{ClassID: classID}
	if date != "" {
		day, err := core.ParseDay(date)
		if err != nil {
			return apps.NewArgumentError("date", err.Error())
		}
		gr.Date = core.Date{Time: day}
	}

	res, err := cli.records.GenerateDaily(context.Background(), gr)
	if err != nil {
		return err
	}
	fmt.Printf("%d records created, %d skipped\n", res.CreatedRecords, len(res.SkippedRecords))
	return nil
}
