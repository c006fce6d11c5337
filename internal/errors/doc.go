// Package errors provides typed relay errors that map onto HTTP statuses.
//
// # Error Kinds
//
//	KindAuthentication  401  bad or missing API token
//	KindValidation      400  missing or malformed url parameter
//	KindConfiguration   500  interface missing, address assignment failed
//	KindUpstream        502  any transport error reaching the target
//	KindTimeout         504  deadline exceeded or request cancelled
//
// # Extracting Statuses
//
//	if err != nil {
//	    http.Error(w, err.Error(), errors.Status(err))
//	}
package errors
