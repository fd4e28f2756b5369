package collect

import (
	"path/filepath"
	"regexp"

	"github.com/itskum47/monforge/monapi/validation"
)

var (
	nameRule    = regexp.MustCompile(`^[\x{4e00}-\x{9fa5}a-zA-Z0-9.\-_]{0,128}$`)
	serviceRule = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)
	cjkRule     = regexp.MustCompile(`[\x{4e00}-\x{9fa5}]`)
)

var logFuncs = map[string]bool{"cnt": true, "avg": true, "sum": true, "max": true, "min": true}

const schemaSrc = `{
  "type": "object",
  "required": ["nid", "name", "collect_type", "step"],
  "properties": {
    "nid": {"type": "integer", "minimum": 1},
    "name": {"type": "string", "minLength": 1, "maxLength": 128},
    "collect_type": {"enum": ["proc", "port", "log"]},
    "step": {"enum": [10, 30, 60, 120, 300, 600, 1800, 3600]},
    "proc": {
      "type": "object",
      "required": ["collect_method", "target"],
      "properties": {
        "collect_method": {"enum": ["cmd", "name"]},
        "target": {"type": "string", "minLength": 1}
      }
    },
    "port": {
      "type": "object",
      "required": ["port", "protocol"],
      "properties": {
        "port": {"type": "integer", "minimum": 1, "maximum": 65535},
        "protocol": {"enum": ["tcp", "udp"]},
        "timeout": {"type": "integer", "minimum": 1}
      }
    },
    "log": {
      "type": "object",
      "required": ["file_path", "func", "pattern"],
      "properties": {
        "file_path": {"type": "string", "minLength": 1},
        "func": {"enum": ["cnt", "avg", "sum", "max", "min"]},
        "pattern": {"type": "string", "minLength": 1},
        "tags": {"type": "object", "additionalProperties": {"type": "string"}}
      }
    }
  }
}`

var schema = validation.MustCompile(schemaSrc)

// Validate checks c against the form rules. c should be normalized first.
func Validate(c *Collect) error {
	errs := &validation.Errors{}
	if err := schema.Check(c, errs); err != nil {
		return err
	}

	if !errs.Has("name") && !nameRule.MatchString(c.Name) {
		errs.Add("name", "only letters, digits, CJK characters and . - _ are allowed")
	}

	switch c.CollectType {
	case TypeProc:
		validateService(c, errs)
		if c.Proc == nil {
			errs.Add("proc", "proc section is required")
		} else if !errs.Has("proc.target") && cjkRule.MatchString(c.Proc.Target) {
			errs.Add("proc.target", "must not contain CJK characters")
		}
	case TypePort:
		validateService(c, errs)
		if c.Port == nil {
			errs.Add("port", "port section is required")
		}
	case TypeLog:
		if c.Log == nil {
			errs.Add("log", "log section is required")
			break
		}
		validateLog(c.Log, errs)
	}

	return errs.Err()
}

func validateService(c *Collect, errs *validation.Errors) {
	switch {
	case c.Service == "":
		errs.Add("service", "must not be empty")
	case !serviceRule.MatchString(c.Service):
		errs.Add("service", "only letters, digits and - are allowed")
	}
}

func validateLog(l *Log, errs *validation.Errors) {
	if l.FilePath != "" && !filepath.IsAbs(l.FilePath) {
		errs.Add("log.file_path", "must be an absolute path")
	}
	if l.Func != "" && !logFuncs[l.Func] {
		errs.Add("log.func", "unsupported function")
	}
	if l.Pattern != "" {
		if _, err := regexp.Compile(l.Pattern); err != nil {
			errs.Add("log.pattern", "invalid regexp: "+err.Error())
		}
	}
	for name, expr := range l.Tags {
		re, err := regexp.Compile(expr)
		if err != nil {
			errs.Add("log.tags."+name, "invalid regexp: "+err.Error())
			continue
		}
		if re.NumSubexp() != 1 {
			errs.Add("log.tags."+name, "must contain exactly one capture group")
		}
	}
}
