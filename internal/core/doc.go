// Package core provides the import engine: header matching, row mapping and
// the batching pipeline that drives importer callbacks.
//
// This package has no transport dependencies. Web handlers, the CLI and
// tests all use it through [Service].
//
// # Importers
//
// An importer is an [ImporterDefinition] registered by name in a [Registry]:
//
//	reg := core.NewRegistry()
//	reg.MustRegister(&core.ImporterDefinition{
//	    Name: "students",
//	    Attributes: []core.AttributeSpec{
//	        {Key: "first_name", Labels: []string{"First Name", "Given Name"}, Required: true},
//	        {Key: "email", Labels: []string{"Email", "E-mail"}},
//	    },
//	    BatchSize: 500,
//	    Callbacks: core.Callbacks{Perform: saveStudents},
//	})
//	reg.Seal()
//
// # Matching
//
// [MatchHeaders] assigns file headers to attributes greedily by label
// similarity; [Candidates] ranks attributes for one header, with an "ignore"
// entry at [IgnoreSimilarity]. [ProposeMapping] turns the assignment into a
// [ColumnMapping] the user can confirm.
//
// # Running
//
// [Service.Run] opens the file, validates the mapping against its headers and
// hands the stream to a [Pipeline]. The pipeline maps each row to a
// [Record], drops blank records, and passes batches of at most BatchSize
// records to the perform callback. Setup runs before the first row, teardown
// after the last. The first failure aborts the run and goes to the error
// callback; see pipeline.go for the full policy.
//
// # Error Handling
//
// Errors match the sentinels in errors.go with errors.Is. [MapError] turns
// any error into a [UserMessage] with a support code (CFG, MAP, ROW, CB,
// FILE, RUN, ERR000).
package core
