package postgres

import "github.com/enerflux/meterhub/internal/ingest"

// TestAccounts is the account set loaded when seeding is enabled. Uploads
// referencing account ids outside this set fail the account-existence rule
// until the accounts are created.
var TestAccounts = []ingest.Account{
	{AccountID: 1234, Name: "Freya"},
	{AccountID: 1239, Name: "Noddy"},
	{AccountID: 1240, Name: "Archie"},
	{AccountID: 1241, Name: "Lara"},
	{AccountID: 1242, Name: "Tim"},
	{AccountID: 1243, Name: "Graham"},
	{AccountID: 1244, Name: "Tony"},
	{AccountID: 1245, Name: "Neville"},
	{AccountID: 1246, Name: "Elon"},
	{AccountID: 1247, Name: "Richard"},
	{AccountID: 1248, Name: "Den"},
	{AccountID: 2233, Name: "Barry"},
	{AccountID: 2344, Name: "Tommy"},
	{AccountID: 2345, Name: "Jerry"},
	{AccountID: 2346, Name: "Ollie"},
	{AccountID: 2347, Name: "Tara"},
	{AccountID: 2348, Name: "Tammy"},
	{AccountID: 2349, Name: "Simon"},
	{AccountID: 2350, Name: "Colin"},
	{AccountID: 2351, Name: "Gladys"},
	{AccountID: 2352, Name: "Greg"},
	{AccountID: 2353, Name: "Tony"},
	{AccountID: 2355, Name: "Arthur"},
	{AccountID: 2356, Name: "Craig"},
	{AccountID: 4534, Name: "Josh"},
	{AccountID: 6776, Name: "Laura"},
	{AccountID: 8766, Name: "Sally"},
}
