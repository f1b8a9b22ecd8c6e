package kma

import "time"

// Forecasts are published at 8 fixed local hours daily.
var issueHours = []int{2, 5, 8, 11, 14, 17, 20, 23}

// KST is the upstream service's local time zone. A fixed offset is intentional:
// Korea observes no DST and the original pipeline used a plain +9h shift.
var KST = time.FixedZone("KST", 9*60*60)

// LatestIssueTime returns the most recent scheduled issue stamp at or before
// now, formatted YYYYMMDDHHMM in KST. Before the first slot of the day it
// rolls back to the previous day's 23:00 issue.
func LatestIssueTime(now time.Time) string {
	local := now.In(KST)
	hour := -1
	for _, h := range issueHours {
		if local.Hour() >= h {
			hour = h
		}
	}
	if hour == -1 {
		local = local.AddDate(0, 0, -1)
		hour = issueHours[len(issueHours)-1]
	}
	stamp := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, KST)
	return stamp.Format("200601021504")
}
