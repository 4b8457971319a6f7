package domain

var Tables = []interface{}{
	&Account{},
	&Session{},
	&SessionUsage{},
	&SessionEventLog{},
}
